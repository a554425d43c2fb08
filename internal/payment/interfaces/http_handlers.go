package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketplace-core/internal/payment/application"
	payment "marketplace-core/internal/payment/domain"
)

// CreatePaymentHandler serves POST /api/v1/payments.
type CreatePaymentHandler struct {
	service *application.Service
}

// NewCreatePaymentHandler constructs a CreatePaymentHandler.
func NewCreatePaymentHandler(service *application.Service) *CreatePaymentHandler {
	return &CreatePaymentHandler{service: service}
}

type createPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// ServeHTTP opens a payment. Repeats with the same transaction_id return the
// existing payment with 200.
func (h *CreatePaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	existing, err := h.service.GetByTransactionID(r.Context(), req.TransactionID)
	created := errors.Is(err, payment.ErrPaymentNotFound) || existing == nil

	p, err := h.service.Create(r.Context(), application.CreateInput{
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
	})
	if err != nil {
		writePaymentError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writePayment(w, status, p)
}

// PaymentWebhookHandler serves POST /api/v1/payments/webhook. The gateway
// notifies by transaction id; duplicate deliveries are expected and safe.
type PaymentWebhookHandler struct {
	service *application.Service
}

// NewPaymentWebhookHandler constructs a PaymentWebhookHandler.
func NewPaymentWebhookHandler(service *application.Service) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{service: service}
}

type webhookRequest struct {
	TransactionID string `json:"transaction_id"`
	Result        string `json:"result"`
}

// ServeHTTP applies a gateway result to the referenced payment.
func (h *PaymentWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.TransactionID == "" {
		http.Error(w, "transaction_id is required", http.StatusBadRequest)
		return
	}

	p, err := h.service.GetByTransactionID(r.Context(), req.TransactionID)
	if err != nil {
		writePaymentError(w, err)
		return
	}

	switch req.Result {
	case "paid":
		p, err = h.service.Confirm(r.Context(), p.ID)
	case "failed":
		p, err = h.service.Fail(r.Context(), p.ID)
	default:
		http.Error(w, "result must be paid or failed", http.StatusBadRequest)
		return
	}
	if err != nil {
		writePaymentError(w, err)
		return
	}
	writePayment(w, http.StatusOK, p)
}

// PaymentActionHandler serves POST /api/v1/payments/action for operator
// driven transitions (cancel, refund, confirm, fail).
type PaymentActionHandler struct {
	service *application.Service
}

// NewPaymentActionHandler constructs a PaymentActionHandler.
func NewPaymentActionHandler(service *application.Service) *PaymentActionHandler {
	return &PaymentActionHandler{service: service}
}

type actionRequest struct {
	PaymentID string `json:"payment_id"`
	Action    string `json:"action"`
}

// ServeHTTP applies the requested transition.
func (h *PaymentActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.PaymentID == "" {
		http.Error(w, "payment_id is required", http.StatusBadRequest)
		return
	}

	var p *payment.Payment
	var err error
	switch req.Action {
	case "confirm":
		p, err = h.service.Confirm(r.Context(), req.PaymentID)
	case "fail":
		p, err = h.service.Fail(r.Context(), req.PaymentID)
	case "cancel":
		p, err = h.service.Cancel(r.Context(), req.PaymentID)
	case "refund":
		p, err = h.service.Refund(r.Context(), req.PaymentID)
	default:
		http.Error(w, "action must be confirm, fail, cancel or refund", http.StatusBadRequest)
		return
	}
	if err != nil {
		writePaymentError(w, err)
		return
	}
	writePayment(w, http.StatusOK, p)
}

// GetPaymentHandler serves GET /api/v1/payments.
type GetPaymentHandler struct {
	service *application.Service
}

// NewGetPaymentHandler constructs a GetPaymentHandler.
func NewGetPaymentHandler(service *application.Service) *GetPaymentHandler {
	return &GetPaymentHandler{service: service}
}

// ServeHTTP resolves a payment by payment_id or transaction_id.
func (h *GetPaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var p *payment.Payment
	var err error
	if id := r.URL.Query().Get("payment_id"); id != "" {
		p, err = h.service.Get(r.Context(), id)
	} else if txID := r.URL.Query().Get("transaction_id"); txID != "" {
		p, err = h.service.GetByTransactionID(r.Context(), txID)
	} else {
		http.Error(w, "payment_id or transaction_id is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writePaymentError(w, err)
		return
	}
	writePayment(w, http.StatusOK, p)
}

type paymentResponse struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func writePayment(w http.ResponseWriter, status int, p *payment.Payment) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(paymentResponse{
		ID:            p.ID,
		TransactionID: p.TransactionID,
		OrderID:       p.OrderID,
		Status:        string(p.Status),
		Amount:        p.Amount,
		Currency:      p.Currency,
		CreatedAt:     p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:     p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrPaymentNotFound):
		http.Error(w, "payment not found", http.StatusNotFound)
	case errors.Is(err, payment.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, payment.ErrEmptyTransactionID),
		errors.Is(err, payment.ErrEmptyOrderID),
		errors.Is(err, payment.ErrNonPositiveAmount),
		errors.Is(err, payment.ErrEmptyCurrency):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
