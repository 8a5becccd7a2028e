package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/verdantlabs/entitlement-service/internal/application"
	"github.com/verdantlabs/entitlement-service/internal/domain"
)

// EntitlementInternalService is the cluster-internal surface other services use
// to gate work on a caller's entitlement without going through the public
// HTTP API.
type EntitlementInternalService interface {
	CheckEntitlement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUsageSummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type EntitlementInternalServer struct {
	service *application.Service
}

func NewEntitlementInternalServer(service *application.Service) *EntitlementInternalServer {
	return &EntitlementInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc EntitlementInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "verdantlabs.entitlement.v1.EntitlementInternalService",
		HandlerType: (*EntitlementInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "CheckEntitlement",
				Handler:    checkEntitlementHandler(svc),
			},
			{
				MethodName: "GetUsageSummary",
				Handler:    getUsageSummaryHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "contracts/proto/entitlement/v1/entitlement_internal.proto",
	}, svc)
}

func subjectFromStruct(req *structpb.Struct) application.Subject {
	fields := req.GetFields()
	return application.Subject{
		AccountID:   fields["account_id"].GetStringValue(),
		DeviceID:    fields["device_id"].GetStringValue(),
		Fingerprint: fields["fingerprint"].GetStringValue(),
		LocalCount:  int(fields["local_count"].GetNumberValue()),
	}
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrLimitReached):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *EntitlementInternalServer) CheckEntitlement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subject := subjectFromStruct(req)
	if subject.Fingerprint == "" && subject.AccountID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing fingerprint or account_id")
	}

	out, err := s.service.Check(ctx, application.CheckRequest{Subject: subject})
	if err != nil {
		return nil, mapServiceError(err)
	}

	resp, err := structpb.NewStruct(map[string]any{
		"allowed":       out.Decision.Allowed,
		"remaining":     out.Decision.Remaining,
		"unlimited":     out.Decision.Unlimited,
		"tier":          string(out.Decision.Tier),
		"guard_tripped": out.Decision.GuardTripped,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *EntitlementInternalServer) GetUsageSummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subject := subjectFromStruct(req)
	if subject.Fingerprint == "" && subject.AccountID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing fingerprint or account_id")
	}

	summary, err := s.service.UsageSummary(ctx, subject)
	if err != nil {
		return nil, mapServiceError(err)
	}

	resp, err := structpb.NewStruct(map[string]any{
		"tier":        string(summary.Tier),
		"window_key":  summary.WindowKey,
		"count":       summary.Count,
		"max_actions": summary.MaxActions,
		"remaining":   summary.Remaining,
		"unlimited":   summary.Unlimited,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func checkEntitlementHandler(svc EntitlementInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.CheckEntitlement(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/verdantlabs.entitlement.v1.EntitlementInternalService/CheckEntitlement",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.CheckEntitlement(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func getUsageSummaryHandler(svc EntitlementInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetUsageSummary(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/verdantlabs.entitlement.v1.EntitlementInternalService/GetUsageSummary",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetUsageSummary(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
