package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/verdantlabs/entitlement-service/internal/adapters/billing"
	cacheadapter "github.com/verdantlabs/entitlement-service/internal/adapters/cache"
	eventadapter "github.com/verdantlabs/entitlement-service/internal/adapters/events"
	grpcadapter "github.com/verdantlabs/entitlement-service/internal/adapters/grpc"
	httpadapter "github.com/verdantlabs/entitlement-service/internal/adapters/http"
	"github.com/verdantlabs/entitlement-service/internal/adapters/identify"
	"github.com/verdantlabs/entitlement-service/internal/adapters/postgres"
	"github.com/verdantlabs/entitlement-service/internal/adapters/security"
	"github.com/verdantlabs/entitlement-service/internal/application"
	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	retention  *eventadapter.RetentionWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("bootstrapping entitlement service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)

	verifier, err := security.NewJWTVerifier(cfg.AuthPublicKeyPEM, cfg.AuthIssuer)
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init jwt verifier: %w", err)
	}

	var entitlement ports.EntitlementProvider
	if cfg.StripeAPIKey != "" {
		entitlement, err = billing.NewStripeEntitlementProvider(cfg.StripeAPIKey, logger)
		if err != nil {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init stripe provider: %w", err)
		}
	} else {
		logger.Warn("no stripe api key configured; premium lookups always return inactive")
		entitlement = billing.StaticEntitlementProvider{}
	}

	identifier, err := identify.NewClient(identify.Config{
		BaseURL: cfg.IdentifyBaseURL,
		APIKey:  cfg.IdentifyAPIKey,
		Timeout: cfg.IdentifyTimeout,
	})
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init identify client: %w", err)
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			Limits: domain.TierLimits{
				UnregisteredMax: cfg.UnregisteredMax,
				RegisteredMax:   cfg.RegisteredMax,
				DeviceCeiling:   cfg.DeviceCeiling,
			},
			PremiumCacheTTL:     cfg.PremiumCacheTTL,
			ReconcileSessionTTL: cfg.ReconcileSessionTTL,
		},
		DeviceUsage: repos.DeviceUsage,
		Actions:     repos.Actions,
		Links:       repos.Links,
		Outbox:      repos.Outbox,
		Markers:     cacheadapter.NewRedisReconcileMarkerStore(redisClient),
		Premium:     cacheadapter.NewRedisPremiumStatusCache(redisClient),
		Entitlement: entitlement,
		Identifier:  identifier,
		Logger:      logger,
	})

	handler := httpadapter.NewHandler(svc, verifier)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewEntitlementInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	outbox := eventadapter.NewOutboxWorker(
		logger,
		repos.Outbox,
		eventadapter.NewRedisStreamPublisher(redisClient, cfg.EventStreamPrefix, cfg.EventStreamMaxLen),
		repos.PremiumUsage,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)
	retention := eventadapter.NewRetentionWorker(logger, svc, cfg.RetentionInterval, cfg.RetainWindows)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     outbox,
		retention:  retention,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("worker started")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return r.outbox.Run(groupCtx) })
	group.Go(func() error { return r.retention.Run(groupCtx) })

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
