package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dukamart/dukapay-gobackend/internal/services"
)

type PaymentHandler struct {
	service   *services.PaymentService
	jwtSecret []byte
}

func NewPaymentHandler(service *services.PaymentService, jwtSecret []byte) *PaymentHandler {
	return &PaymentHandler{service: service, jwtSecret: jwtSecret}
}

type initiatePaymentRequest struct {
	Amount           int64  `json:"amount"`
	PhoneNumber      string `json:"phone_number"`
	AccountReference string `json:"account_reference"`
	TransactionDesc  string `json:"transaction_desc"`
}

// InitiatePayment handles POST /api/payment: runs the STK push flow and
// returns the gateway-issued checkout request id the caller polls on.
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	txn, err := h.service.Initiate(r.Context(), req.Amount, req.PhoneNumber, req.AccountReference, req.TransactionDesc)
	if err != nil {
		log.Printf("Failed to initiate payment: %v", err)
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrGatewayAuth),
			errors.Is(err, services.ErrGatewayRejected),
			errors.Is(err, services.ErrGatewayUnreachable):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Transaction failed. Please try again later.")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "success",
		"message":             "Transaction initiated successfully",
		"transaction_id":      txn.CheckoutRequestID,
		"merchant_request_id": txn.MerchantRequestID,
	})
}

// Callback handles POST /api/payment/callback, the gateway's asynchronous
// result delivery. A duplicate delivery is answered 200 like the first one;
// an unknown checkout request id is answered 404 so the gateway does not
// consider the callback durably processed.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("Malformed callback payload: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid callback payload")
		return
	}

	result, err := h.service.Reconcile(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, "Invalid callback payload")
		case errors.Is(err, services.ErrTransactionNotFound):
			writeError(w, http.StatusNotFound, "Transaction not found")
		default:
			log.Printf("Failed to process callback: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to process callback")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":              "Callback processed successfully",
		"transaction_status":  result.Transaction.Status,
		"checkout_request_id": result.Transaction.CheckoutRequestID,
	})
}

// GetPaymentStatus handles GET /api/payment/{checkoutRequestID}, the
// poll-to-observe path for the checkout caller.
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	checkoutRequestID := vars["checkoutRequestID"]

	txn, err := h.service.GetStatus(r.Context(), checkoutRequestID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, "Checkout request ID is required")
		case errors.Is(err, services.ErrTransactionNotFound):
			writeError(w, http.StatusNotFound, "Transaction not found")
		default:
			log.Printf("Failed to fetch payment status for %s: %v", checkoutRequestID, err)
			writeError(w, http.StatusInternalServerError, "Failed to fetch payment status")
		}
		return
	}

	resp := map[string]interface{}{
		"checkout_request_id": txn.CheckoutRequestID,
		"status":              txn.Status,
		"amount":              txn.Amount,
	}
	if txn.MpesaReceiptNumber != "" {
		resp["mpesa_receipt_number"] = txn.MpesaReceiptNumber
	}
	if txn.ResultDesc != "" {
		resp["result_desc"] = txn.ResultDesc
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStalePayments handles GET /api/payments/pending, listing pending
// transactions older than min_age_minutes (default 30) for a manual or
// scheduled reconciliation sweep.
func (h *PaymentHandler) GetStalePayments(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, h.jwtSecret); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	minAge := 30 * time.Minute
	if raw := r.URL.Query().Get("min_age_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			writeError(w, http.StatusBadRequest, "min_age_minutes must be a non-negative integer")
			return
		}
		minAge = time.Duration(minutes) * time.Minute
	}

	txns, err := h.service.ListStalePending(r.Context(), minAge)
	if err != nil {
		log.Printf("Failed to list stale pending transactions: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	writeJSON(w, http.StatusOK, txns)
}

// GetPayments handles GET /api/payments, the JWT-protected audit listing.
func (h *PaymentHandler) GetPayments(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, h.jwtSecret); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	statusFilter := r.URL.Query().Get("status")
	txns, err := h.service.ListTransactions(r.Context(), statusFilter)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("Failed to list transactions: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	writeJSON(w, http.StatusOK, txns)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
