package payout

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/milestonepay/pkg/middleware"
	"github.com/fkhayef/milestonepay/pkg/response"
)

// Handler exposes the outbox to pull-mode payout integrations and lets
// workers look up their own payouts
type Handler struct {
	service *Service
}

// NewHandler creates a new payout handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func callerFrom(r *http.Request) Caller {
	if middleware.IsService(r.Context()) {
		return Caller{Service: true}
	}
	userID, _ := middleware.GetUserID(r.Context())
	return Caller{UserID: userID}
}

func writeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, ErrEventNotFound):
		response.NotFound(w, "Payout event not found")
	case errors.Is(err, ErrForbidden):
		response.Error(w, http.StatusForbidden, "UNAUTHORIZED", "Not allowed to "+action+" this payout event")
	default:
		response.InternalError(w, "Failed to "+action+" payout event")
	}
}

// Routes returns the router for payout endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/events", h.List)
	r.Get("/events/{id}", h.Get)
	r.Post("/events/{id}/ack", h.Ack)

	return r
}

// EventResponse represents the response for a payout event
type EventResponse struct {
	ID               string  `json:"id"`
	TransactionID    int64   `json:"transaction_id"`
	PaymentRequestID int64   `json:"payment_request_id"`
	ServiceRequestID int64   `json:"service_request_id"`
	WorkerID         int64   `json:"worker_id"`
	WorkerAmount     int64   `json:"worker_amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status"`
	Attempts         int     `json:"attempts"`
	LastError        *string `json:"last_error,omitempty"`
	CreatedAt        string  `json:"created_at"`
	DispatchedAt     *string `json:"dispatched_at,omitempty"`
}

func toResponse(e *Event) *EventResponse {
	resp := &EventResponse{
		ID:               e.ID.String(),
		TransactionID:    e.TransactionID,
		PaymentRequestID: e.PaymentRequestID,
		ServiceRequestID: e.ServiceRequestID,
		WorkerID:         e.WorkerID,
		WorkerAmount:     e.WorkerAmount,
		Currency:         e.Currency,
		Status:           string(e.Status),
		Attempts:         e.Attempts,
		LastError:        e.LastError,
		CreatedAt:        e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if e.DispatchedAt != nil {
		s := e.DispatchedAt.UTC().Format("2006-01-02T15:04:05Z")
		resp.DispatchedAt = &s
	}
	return resp
}

// List handles GET /payouts/events. Users see only their own payouts.
// @Summary List payout events
// @Tags payouts
// @Produce json
// @Param status query string false "pending or dispatched"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.APIResponse
// @Failure 400 {object} response.APIResponse
// @Router /payouts/events [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	status := EventStatus(r.URL.Query().Get("status"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	if page > math.MaxInt32/perPage {
		response.BadRequest(w, "page is out of range")
		return
	}
	switch status {
	case "", EventStatusPending, EventStatusDispatched:
	default:
		response.BadRequest(w, "status must be pending or dispatched")
		return
	}

	events, total, err := h.service.List(r.Context(), callerFrom(r), status, perPage, (page-1)*perPage)
	if err != nil {
		writeError(w, err, "list")
		return
	}

	eventResponses := make([]*EventResponse, len(events))
	for i, e := range events {
		eventResponses[i] = toResponse(e)
	}

	response.JSONWithMeta(w, http.StatusOK, eventResponses, response.NewMeta(page, perPage, total))
}

// Get handles GET /payouts/events/{id}
// @Summary Get a payout event
// @Tags payouts
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /payouts/events/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid event ID")
		return
	}

	e, err := h.service.Get(r.Context(), callerFrom(r), id)
	if err != nil {
		writeError(w, err, "get")
		return
	}

	response.JSON(w, http.StatusOK, toResponse(e))
}

// Ack handles POST /payouts/events/{id}/ack. Requires the service key.
// @Summary Acknowledge a payout event
// @Tags payouts
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /payouts/events/{id}/ack [post]
func (h *Handler) Ack(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid event ID")
		return
	}

	e, err := h.service.Ack(r.Context(), callerFrom(r), id)
	if err != nil {
		writeError(w, err, "acknowledge")
		return
	}

	response.JSON(w, http.StatusOK, toResponse(e))
}
