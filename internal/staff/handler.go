package staff

import (
	"net/http"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for the staff module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new staff handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers staff routes. Requires an authenticated session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/staff", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// CreateRequest represents the request body for creating a staff account.
type CreateRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Name     string `json:"name" validate:"required,min=1,max=255"`
	Role     string `json:"role" validate:"required,oneof=Admin Support"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Avatar   string `json:"avatar" validate:"omitempty,url"`
}

// UpdateRequest represents the request body for updating a staff account.
type UpdateRequest struct {
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Role     *string `json:"role" validate:"omitempty,oneof=Admin Support"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	Avatar   *string `json:"avatar" validate:"omitempty,url"`
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrStaffNotFound, Status: http.StatusNotFound},
	{Error: ErrEmailExists, Status: http.StatusConflict},
}

// List handles GET /staff.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}

	users, err := h.service.List(r.Context(), session)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, users)
}

// Create handles POST /staff.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	user, err := h.service.Create(r.Context(), session, CreateInput{
		Email:    req.Email,
		Name:     req.Name,
		Role:     domain.Role(req.Role),
		Password: req.Password,
		Avatar:   req.Avatar,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, user)
}

// Get handles GET /staff/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.service.Get(r.Context(), session, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// Update handles PUT /staff/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	input := UpdateInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Avatar:   req.Avatar,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		input.Role = &role
	}

	user, err := h.service.Update(r.Context(), session, id, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// Delete handles DELETE /staff/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteStaffUser(r.Context(), session, id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pathID returns the canonical form of the {id} URL parameter.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorWithKind(w, http.StatusBadRequest, domain.KindValidation, "invalid id")
		return "", false
	}
	return id.String(), true
}
