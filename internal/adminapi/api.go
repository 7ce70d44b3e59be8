// Package adminapi exposes a read-only HTTP surface over the gateway's
// subscribers, namespaces, and message log (spec's admin/ops surface),
// plus health and readiness checks used by the deployment platform.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/domain/postgres"
	"github.com/serbia-gov/platform/internal/shared/auth"
	"github.com/serbia-gov/platform/internal/shared/config"
	"github.com/serbia-gov/platform/internal/shared/errors"
)

// Store is the subset of the postgres repository this surface reads from.
// Defined locally so tests can fake it without a live database.
type Store interface {
	ListAllSubscribers(ctx context.Context) ([]*domain.Subscriber, error)
	ListNamespaces(ctx context.Context) ([]*domain.Namespace, error)
	ListMessageLog(ctx context.Context, filter postgres.MessageLogFilter) ([]*domain.MessageLogEntry, error)
}

// HealthChecker reports whether a dependency the gateway relies on is live.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler serves the admin routes.
type Handler struct {
	store    Store
	db       HealthChecker
	authConf config.AuthConfig
}

func NewHandler(store Store, db HealthChecker, authConf config.AuthConfig) *Handler {
	return &Handler{store: store, db: db, authConf: authConf}
}

// Routes registers the admin routes under whatever prefix the caller mounts
// this handler at. /health and /ready stay unauthenticated since the
// deployment platform's probes don't carry a bearer token; everything else
// requires an operator JWT with the "ops" role.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.authConf))
		r.Use(auth.RequireRoles("ops"))

		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", h.ListSubscribers)
		})
		r.Route("/namespaces", func(r chi.Router) {
			r.Get("/", h.ListNamespaces)
		})
		r.Route("/messages", func(r chi.Router) {
			r.Get("/", h.ListMessages)
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"database": "not configured"})
		return
	}
	if err := h.db.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"database": "not ready: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"database": "ready"})
}

func (h *Handler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListAllSubscribers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": subs})
}

func (h *Handler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	namespaces, err := h.store.ListNamespaces(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": namespaces})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := postgres.MessageLogFilter{
		Direction: domain.MessageDirection(q.Get("direction")),
		Status:    q.Get("status"),
	}

	entries, err := h.store.ListMessageLog(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
