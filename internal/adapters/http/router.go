package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdantlabs/entitlement-service/internal/application"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

// Handler is the HTTP adapter entrypoint for entitlement use-cases.
// Keeping only application and verifier dependencies here preserves clean
// adapter boundaries.
type Handler struct {
	service  *application.Service
	verifier ports.TokenVerifier
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, verifier ports.TokenVerifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

// NewRouter registers entitlement HTTP routes and the middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/entitlements/v1", func(r chi.Router) {
		// Optional auth: anonymous devices and signed-in accounts share these
		// endpoints; a present bearer token selects the account branch.
		r.Group(func(r chi.Router) {
			r.Use(handler.optionalAuthMiddleware)
			r.Post("/check", handler.check)
			r.Post("/actions", handler.recordAction)
			r.Get("/usage", handler.usageSummary)
			r.Post("/reconcile", handler.reconcile)
		})

		r.Get("/devices/{fingerprint}/usage", handler.deviceUsage)
		r.Put("/devices/{fingerprint}/usage", handler.upsertDeviceUsage)

		r.Group(func(r chi.Router) {
			r.Use(handler.requireAuthMiddleware)
			r.Post("/devices/link", handler.linkDevice)
		})
	})

	r.Route("/identify/v1", func(r chi.Router) {
		r.Use(handler.optionalAuthMiddleware)
		r.Post("/identifications", handler.identify)
	})

	return r
}
