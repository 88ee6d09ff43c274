package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/storefront-identity/internal/application"
	"github.com/viralforge/storefront-identity/internal/domain"
)

// KeySource publishes the verification keys of locally issued tokens.
type KeySource interface {
	PublicJWKs() []map[string]any
}

// Handler is the HTTP adapter entrypoint for identity use-cases.
type Handler struct {
	service *application.Service
	keys    KeySource
}

type HandlerOption func(*Handler)

// WithKeySource exposes keys at /.well-known/jwks.json.
func WithKeySource(keys KeySource) HandlerOption {
	return func(h *Handler) {
		h.keys = keys
	}
}

func NewHandler(service *application.Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if handler.keys != nil {
		r.Get("/.well-known/jwks.json", handler.jwks)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", handler.register)
		r.Post("/auth/login", handler.login)
		r.Post("/auth/logout", handler.logout)
		r.Get("/session/stream", handler.streamSession)

		r.Group(func(r chi.Router) {
			r.Use(handler.sessionMiddleware)
			r.Get("/session", handler.getSession)

			r.Route("/admin/users/{userID}", func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdministrator))
				r.Get("/", handler.getUser)
				r.Post("/admin-toggle", handler.toggleAdmin)
				r.Delete("/", handler.deleteUser)
			})
		})
	})

	return r
}
