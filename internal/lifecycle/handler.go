package lifecycle

import (
	"net/http"

	"github.com/bissquit/submanage/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for dashboard aggregates and sweeps.
type Handler struct {
	service *Service
}

// NewHandler creates a new lifecycle handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers lifecycle routes. Requires an authenticated session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/metrics/revenue", h.Revenue)
	r.Post("/lifecycle/sweep", h.Sweep)
}

// Dashboard handles GET /dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}

	dashboard, err := h.service.Dashboard(r.Context(), session)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, dashboard)
}

// Revenue handles GET /metrics/revenue.
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}

	revenue, err := h.service.Revenue(r.Context(), session)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, revenue)
}

// Sweep handles POST /lifecycle/sweep.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}

	result, err := h.service.Sweep(r.Context(), session)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}
