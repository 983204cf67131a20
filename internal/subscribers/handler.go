package subscribers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/httputil"
	"github.com/bissquit/submanage/internal/summarizer"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for the subscribers module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new subscribers handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers subscriber routes. Requires an authenticated session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/subscribers", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/payments", h.AddPayment)
		r.Post("/{id}/messages", h.SendMessage)
		r.Post("/{id}/notes/summary", h.SummarizeNotes)
	})
}

// CreateRequest represents the request body for creating a subscriber.
type CreateRequest struct {
	FullName    string     `json:"full_name" validate:"required,min=1,max=255"`
	Email       string     `json:"email" validate:"required,email,max=255"`
	PhoneNumber string     `json:"phone_number" validate:"omitempty,max=32"`
	Plan        string     `json:"plan" validate:"required"`
	StartDate   *time.Time `json:"start_date"`
	Status      string     `json:"status" validate:"omitempty,oneof=Active Expiring Expired Cancelled Trial"`
	Notes       string     `json:"notes" validate:"max=10000"`
}

// UpdateRequest represents the request body for updating a subscriber.
type UpdateRequest struct {
	FullName    *string    `json:"full_name" validate:"omitempty,min=1,max=255"`
	Email       *string    `json:"email" validate:"omitempty,email,max=255"`
	PhoneNumber *string    `json:"phone_number" validate:"omitempty,max=32"`
	Plan        *string    `json:"plan"`
	StartDate   *time.Time `json:"start_date"`
	Status      *string    `json:"status" validate:"omitempty,oneof=Active Expiring Expired Cancelled Trial"`
	Notes       *string    `json:"notes" validate:"omitempty,max=10000"`
}

// PaymentRequest represents the request body for recording a payment.
type PaymentRequest struct {
	TransactionID *string    `json:"transaction_id" validate:"omitempty,min=1,max=255"`
	Amount        float64    `json:"amount" validate:"gte=0"`
	Currency      string     `json:"currency" validate:"required,len=3"`
	PaidAt        *time.Time `json:"paid_at"`
	Method        string     `json:"method" validate:"max=64"`
}

// MessageRequest represents the request body for sending a message.
type MessageRequest struct {
	Channel    string `json:"channel" validate:"required,oneof=SMS Email WhatsApp"`
	TemplateID string `json:"template_id" validate:"required_without=Message"`
	Message    string `json:"message" validate:"max=2000"`
}

// SummaryRequest optionally carries unsaved notes to summarize.
type SummaryRequest struct {
	Notes string `json:"notes" validate:"max=10000"`
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrSubscriberNotFound, Status: http.StatusNotFound},
	{Error: ErrEmailExists, Status: http.StatusConflict},
	{Error: ErrDuplicatePayment, Status: http.StatusConflict},
	{Error: summarizer.ErrUnavailable, Status: http.StatusBadGateway, Message: "summarizer unavailable"},
}

// List handles GET /subscribers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	params := ListParams{
		Status: domain.SubscriberStatus(q.Get("status")),
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
	}
	for name, dst := range map[string]*int{"page": &params.Page, "limit": &params.Limit} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.ErrorWithKind(w, http.StatusBadRequest, domain.KindValidation, "invalid "+name)
			return
		}
		*dst = n
	}

	page, err := h.service.List(r.Context(), session, params)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, page)
}

// Create handles POST /subscribers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	input := CreateInput{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Plan:        domain.Plan(req.Plan),
		Status:      domain.SubscriberStatus(req.Status),
		Notes:       req.Notes,
	}
	if req.StartDate != nil {
		input.StartDate = *req.StartDate
	}

	sub, err := h.service.Create(r.Context(), session, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, sub)
}

// Get handles GET /subscribers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Get(r.Context(), session, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// Update handles PUT /subscribers/{id}.
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
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		StartDate:   req.StartDate,
		Notes:       req.Notes,
	}
	if req.Plan != nil {
		plan := domain.Plan(*req.Plan)
		input.Plan = &plan
	}
	if req.Status != nil {
		status := domain.SubscriberStatus(*req.Status)
		input.Status = &status
	}

	sub, err := h.service.Update(r.Context(), session, id, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// Delete handles DELETE /subscribers/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteSubscriber(r.Context(), session, id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddPayment handles POST /subscribers/{id}/payments.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req PaymentRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	input := PaymentInput{
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Method:        req.Method,
	}
	if req.PaidAt != nil {
		input.PaidAt = *req.PaidAt
	}

	payment, err := h.service.AddPayment(r.Context(), session, id, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, payment)
}

// SendMessage handles POST /subscribers/{id}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	comm, err := h.service.SendMessage(r.Context(), session, id, MessageInput{
		Channel:    domain.Channel(req.Channel),
		TemplateID: req.TemplateID,
		Message:    req.Message,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, comm)
}

// SummarizeNotes handles POST /subscribers/{id}/notes/summary.
func (h *Handler) SummarizeNotes(w http.ResponseWriter, r *http.Request) {
	session, ok := httputil.Session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req SummaryRequest
	if r.ContentLength != 0 {
		if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
			return
		}
	}

	summary, err := h.service.SummarizeNotes(r.Context(), session, id, req.Notes)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"summary": summary})
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
