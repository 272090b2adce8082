package payment

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/milestonepay/pkg/middleware"
	"github.com/fkhayef/milestonepay/pkg/response"
)

// retryAfterSeconds is sent with RETRYABLE responses
const retryAfterSeconds = 1

// Handler handles HTTP requests for payment operations
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for payment endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/requests", h.Create)
	r.Post("/requests/resolve", h.Resolve)
	r.Get("/requests/{id}", h.GetByID)
	r.Get("/history/{serviceRequestId}", h.GetHistory)
	r.Get("/budget/{serviceRequestId}", h.GetBudget)

	return r
}

// writeError maps a payment error to its status and code
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrRetryable):
		response.ServiceUnavailable(w, "RETRYABLE", "Service request is busy, retry shortly", retryAfterSeconds)
	case errors.Is(err, ErrInvalidAmount):
		response.UnprocessableEntity(w, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, ErrInvalidDescription):
		response.UnprocessableEntity(w, "INVALID_DESCRIPTION", err.Error())
	case errors.Is(err, ErrBudgetExceeded):
		response.UnprocessableEntity(w, "BUDGET_EXCEEDED", err.Error())
	case errors.Is(err, ErrInvalidDecision):
		response.Error(w, http.StatusBadRequest, "INVALID_DECISION", err.Error())
	case errors.Is(err, ErrInvalidState):
		response.Error(w, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, ErrAlreadyResolved):
		response.Error(w, http.StatusConflict, "ALREADY_RESOLVED", err.Error())
	case errors.Is(err, ErrDuplicateTransaction):
		response.Error(w, http.StatusConflict, "DUPLICATE_TRANSACTION", err.Error())
	case errors.Is(err, ErrUnauthorized):
		response.Error(w, http.StatusForbidden, "UNAUTHORIZED", err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrTransactionFailed):
		log.Printf("payment: %v", err)
		response.Error(w, http.StatusInternalServerError, "TRANSACTION_FAILED", "Failed to record transaction")
	default:
		log.Printf("payment: %v", err)
		response.InternalError(w, fallback)
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// Create handles POST /payments/requests
// @Summary Request a milestone payment
// @Tags payments
// @Accept json
// @Produce json
// @Param request body CreatePaymentRequestRequest true "Payment request"
// @Success 201 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Failure 422 {object} response.APIResponse
// @Router /payments/requests [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req CreatePaymentRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if req.ServiceRequestID <= 0 {
		response.BadRequest(w, "service_request_id is required")
		return
	}

	pr, err := h.service.CreateRequest(r.Context(), CreateRequestInput{
		ServiceRequestID: req.ServiceRequestID,
		RequestedBy:      userID,
		Amount:           req.Amount,
		Description:      req.Description,
	})
	if err != nil {
		writeError(w, err, "Failed to create payment request")
		return
	}

	response.JSON(w, http.StatusCreated, pr.ToResponse())
}

// Resolve handles POST /payments/requests/resolve
// @Summary Approve or decline a payment request
// @Tags payments
// @Accept json
// @Produce json
// @Param request body ResolvePaymentRequestRequest true "Decision"
// @Success 200 {object} response.APIResponse
// @Failure 400 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Failure 503 {object} response.APIResponse
// @Router /payments/requests/resolve [post]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req ResolvePaymentRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if req.RequestID <= 0 {
		response.BadRequest(w, "request_id is required")
		return
	}

	res, err := h.service.ResolveRequest(r.Context(), ResolveRequestInput{
		RequestID:     req.RequestID,
		ResolvedBy:    userID,
		Decision:      req.Action,
		DeclineReason: req.DeclineReason,
	})
	if err != nil {
		writeError(w, err, "Failed to resolve payment request")
		return
	}

	response.JSON(w, http.StatusOK, res.ToResponse())
}

// GetByID handles GET /payments/requests/{id}
// @Summary Get a payment request
// @Tags payments
// @Produce json
// @Param id path int true "Payment request ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /payments/requests/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid payment request ID")
		return
	}

	pr, err := h.service.GetRequest(r.Context(), userID, id)
	if err != nil {
		writeError(w, err, "Failed to get payment request")
		return
	}

	response.JSON(w, http.StatusOK, pr.ToResponse())
}

// GetHistory handles GET /payments/history/{serviceRequestId}
// @Summary Payment history of a service request
// @Tags payments
// @Produce json
// @Param serviceRequestId path int true "Service request ID"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /payments/history/{serviceRequestId} [get]
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	jobID, ok := pathID(r, "serviceRequestId")
	if !ok {
		response.BadRequest(w, "Invalid service request ID")
		return
	}

	history, err := h.service.GetHistory(r.Context(), userID, jobID)
	if err != nil {
		writeError(w, err, "Failed to get payment history")
		return
	}

	response.JSON(w, http.StatusOK, history.ToResponse())
}

// GetBudget handles GET /payments/budget/{serviceRequestId}
// @Summary Budget summary of a service request
// @Tags payments
// @Produce json
// @Param serviceRequestId path int true "Service request ID"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /payments/budget/{serviceRequestId} [get]
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	jobID, ok := pathID(r, "serviceRequestId")
	if !ok {
		response.BadRequest(w, "Invalid service request ID")
		return
	}

	summary, err := h.service.Summary(r.Context(), userID, jobID)
	if err != nil {
		writeError(w, err, "Failed to get budget summary")
		return
	}

	response.JSON(w, http.StatusOK, summary)
}
