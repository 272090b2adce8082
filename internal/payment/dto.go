package payment

const timeLayout = "2006-01-02T15:04:05Z"

// CreatePaymentRequestRequest represents the request to create a payment request
type CreatePaymentRequestRequest struct {
	ServiceRequestID int64  `json:"service_request_id"`
	Amount           int64  `json:"amount"` // minor currency units
	Description      string `json:"description"`
}

// ResolvePaymentRequestRequest represents the client's decision on a request
type ResolvePaymentRequestRequest struct {
	RequestID     int64   `json:"request_id"`
	Action        string  `json:"action"` // approve or decline
	DeclineReason *string `json:"decline_reason,omitempty"`
}

// PaymentRequestResponse represents the response for a payment request
type PaymentRequestResponse struct {
	ID               int64         `json:"id"`
	ServiceRequestID int64         `json:"service_request_id"`
	RequestedBy      int64         `json:"requested_by"`
	Amount           int64         `json:"amount"`
	Description      string        `json:"description"`
	Status           RequestStatus `json:"status"`
	RequestedAt      string        `json:"requested_at"`
	ResolvedAt       *string       `json:"resolved_at,omitempty"`
	DeclineReason    *string       `json:"decline_reason,omitempty"`
}

// TransactionResponse represents the response for a transaction
type TransactionResponse struct {
	ID               int64             `json:"id"`
	PaymentRequestID int64             `json:"payment_request_id"`
	ServiceRequestID int64             `json:"service_request_id"`
	Amount           int64             `json:"amount"`
	PlatformFee      int64             `json:"platform_fee"`
	WorkerAmount     int64             `json:"worker_amount"`
	Status           TransactionStatus `json:"status"`
	Description      string            `json:"description"`
	CreatedAt        string            `json:"created_at"`
}

// ResolutionResponse represents the outcome of resolving a request
type ResolutionResponse struct {
	*PaymentRequestResponse
	Transaction *TransactionResponse `json:"transaction,omitempty"`
}

// HistoryResponse represents the payment timeline of a service request
type HistoryResponse struct {
	Summary         BudgetSummary             `json:"summary"`
	PaymentRequests []*PaymentRequestResponse `json:"payment_requests"`
	Transactions    []*TransactionResponse    `json:"transactions"`
}

// ToResponse converts a PaymentRequest model to a PaymentRequestResponse DTO
func (pr *PaymentRequest) ToResponse() *PaymentRequestResponse {
	resp := &PaymentRequestResponse{
		ID:               pr.ID,
		ServiceRequestID: pr.ServiceRequestID,
		RequestedBy:      pr.RequestedBy,
		Amount:           pr.Amount,
		Description:      pr.Description,
		Status:           pr.Status,
		RequestedAt:      pr.RequestedAt.UTC().Format(timeLayout),
		DeclineReason:    pr.DeclineReason,
	}
	if pr.ResolvedAt != nil {
		s := pr.ResolvedAt.UTC().Format(timeLayout)
		resp.ResolvedAt = &s
	}
	return resp
}

// ToResponse converts a Transaction model to a TransactionResponse DTO
func (t *Transaction) ToResponse() *TransactionResponse {
	return &TransactionResponse{
		ID:               t.ID,
		PaymentRequestID: t.PaymentRequestID,
		ServiceRequestID: t.ServiceRequestID,
		Amount:           t.Amount,
		PlatformFee:      t.PlatformFee,
		WorkerAmount:     t.WorkerAmount,
		Status:           t.Status,
		Description:      t.Description,
		CreatedAt:        t.CreatedAt.UTC().Format(timeLayout),
	}
}

// ToResponse converts a Resolution to a ResolutionResponse DTO
func (r *Resolution) ToResponse() *ResolutionResponse {
	resp := &ResolutionResponse{PaymentRequestResponse: r.Request.ToResponse()}
	if r.Transaction != nil {
		resp.Transaction = r.Transaction.ToResponse()
	}
	return resp
}

// ToResponse converts a History to a HistoryResponse DTO
func (h *History) ToResponse() *HistoryResponse {
	resp := &HistoryResponse{
		Summary:         h.Summary,
		PaymentRequests: make([]*PaymentRequestResponse, len(h.PaymentRequests)),
		Transactions:    make([]*TransactionResponse, len(h.Transactions)),
	}
	for i, pr := range h.PaymentRequests {
		resp.PaymentRequests[i] = pr.ToResponse()
	}
	for i, t := range h.Transactions {
		resp.Transactions[i] = t.ToResponse()
	}
	return resp
}
