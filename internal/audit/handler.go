package audit

import (
	"net/http"
	"strconv"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for the audit module.
type Handler struct {
	service *Service
}

// NewHandler creates a new audit handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers audit routes. Requires an authenticated session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audit-logs", h.List)
}

// List handles GET /audit-logs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := Filter{
		StaffID:      q.Get("staff_id"),
		SubscriberID: q.Get("subscriber_id"),
		Action:       domain.AuditAction(q.Get("action")),
	}

	for _, id := range []string{filter.StaffID, filter.SubscriberID} {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			httputil.ErrorWithKind(w, http.StatusBadRequest, domain.KindValidation, "invalid id: "+id)
			return
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.ErrorWithKind(w, http.StatusBadRequest, domain.KindValidation, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.ErrorWithKind(w, http.StatusBadRequest, domain.KindValidation, "invalid offset")
			return
		}
		filter.Offset = n
	}

	page, err := h.service.List(r.Context(), session, filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, page)
}
