package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/dukamart/dukapay-gobackend/internal/models"
)

// Gateway is the outbound side of the payment flow. DarajaClient implements
// it; tests substitute a fake.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, p STKPushParams) (*STKPushAck, error)
}

// TransactionStore is the durable record of payment attempts. The conditional
// CompleteTerminal is the only mutation path after creation.
type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error)
	CompleteTerminal(ctx context.Context, checkoutRequestID string, update TerminalUpdate) (*models.Transaction, bool, error)
	List(ctx context.Context, statusFilter string) ([]models.Transaction, error)
	FindPending(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error)
}

// PaymentService orchestrates STK push initiation and callback reconciliation.
type PaymentService struct {
	gateway Gateway
	store   TransactionStore
}

func NewPaymentService(gateway Gateway, store TransactionStore) *PaymentService {
	return &PaymentService{gateway: gateway, store: store}
}

var phonePattern = regexp.MustCompile(`^\d{9,15}$`)

// Initiate runs the push-payment flow: validate, acquire token, submit the
// push, persist a pending transaction keyed by the gateway's checkout request
// id. A transaction exists if and only if the gateway accepted the request;
// any gateway failure aborts before the store is touched.
func (s *PaymentService) Initiate(ctx context.Context, amount int64, phoneNumber, accountReference, transactionDesc string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	phoneNumber = strings.TrimSpace(phoneNumber)
	accountReference = strings.TrimSpace(accountReference)
	transactionDesc = strings.TrimSpace(transactionDesc)

	if amount <= 0 {
		log.Printf("Invalid input: amount=%d is not positive", amount)
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if phoneNumber == "" {
		log.Printf("Invalid input: phone number is empty")
		return nil, fmt.Errorf("%w: phone number is required", ErrValidation)
	}
	if !phonePattern.MatchString(phoneNumber) {
		log.Printf("Invalid input: phone number %q is not a valid MSISDN", phoneNumber)
		return nil, fmt.Errorf("%w: phone number must be digits only", ErrValidation)
	}
	if accountReference == "" {
		accountReference = "ORD-" + strings.ToUpper(uuid.NewString()[:8])
	}
	if transactionDesc == "" {
		transactionDesc = "Order payment"
	}

	ack, err := s.gateway.InitiateSTKPush(ctx, STKPushParams{
		Amount:           amount,
		PhoneNumber:      phoneNumber,
		AccountReference: accountReference,
		TransactionDesc:  transactionDesc,
	})
	if err != nil {
		return nil, err
	}

	// The stored record keeps the caller-supplied reference fields in full;
	// only the wire request is truncated.
	txn := &models.Transaction{
		CheckoutRequestID: ack.CheckoutRequestID,
		MerchantRequestID: ack.MerchantRequestID,
		PhoneNumber:       phoneNumber,
		Amount:            amount,
		AccountReference:  accountReference,
		TransactionDesc:   transactionDesc,
		Status:            models.StatusPending,
	}
	if err := s.store.Create(ctx, txn); err != nil {
		return nil, err
	}

	log.Printf("Transaction initiated: checkout_request_id=%s amount=%d phone=%s", txn.CheckoutRequestID, amount, phoneNumber)
	return txn, nil
}

// ReconcileResult is the outcome of processing one callback delivery.
// Duplicate is true when the transaction was already terminal and nothing
// was changed.
type ReconcileResult struct {
	Transaction *models.Transaction
	Duplicate   bool
}

// Reconcile processes a gateway callback. The payload shape is the gateway's,
// so the stkCallback envelope is extracted defensively; a payload without it
// is rejected as validation failure and nothing is mutated. The terminal
// transition itself is a single conditional store update, so a duplicate or
// concurrent delivery observes the already-applied state and is reported as
// success.
func (s *PaymentService) Reconcile(ctx context.Context, payload map[string]interface{}) (*ReconcileResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	callback, ok := extractSTKCallback(payload)
	if !ok {
		log.Printf("Callback payload missing Body.stkCallback envelope")
		return nil, fmt.Errorf("%w: missing stkCallback envelope", ErrValidation)
	}

	checkoutRequestID, _ := callback["CheckoutRequestID"].(string)
	if checkoutRequestID == "" {
		log.Printf("Callback missing CheckoutRequestID")
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrValidation)
	}

	resultCode, ok := asInt64(callback["ResultCode"])
	if !ok {
		log.Printf("Callback for %s missing ResultCode", checkoutRequestID)
		return nil, fmt.Errorf("%w: missing ResultCode", ErrValidation)
	}
	resultDesc, _ := callback["ResultDesc"].(string)

	update := TerminalUpdate{
		ResultDesc:   resultDesc,
		CallbackData: bson.M(payload),
	}
	if resultCode == 0 {
		update.Status = models.StatusPaid
		// Metadata is authoritative: amount and phone number from the
		// callback overwrite the values recorded at initiation.
		meta := extractCallbackMetadata(callback)
		if v, ok := asInt64(meta["Amount"]); ok {
			update.Amount = v
		}
		if v, ok := meta["MpesaReceiptNumber"].(string); ok {
			update.MpesaReceiptNumber = v
		}
		if v, ok := asNumericString(meta["TransactionDate"]); ok {
			update.TransactionDate = v
		}
		if v, ok := asNumericString(meta["PhoneNumber"]); ok {
			update.PhoneNumber = v
		}
	} else {
		update.Status = models.StatusFailed
		log.Printf("Failed transaction %s: code=%d desc=%s", checkoutRequestID, resultCode, resultDesc)
	}

	txn, applied, err := s.store.CompleteTerminal(ctx, checkoutRequestID, update)
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Printf("Duplicate callback for %s, already %s", checkoutRequestID, txn.Status)
		return &ReconcileResult{Transaction: txn, Duplicate: true}, nil
	}

	log.Printf("Transaction %s reconciled to %s", checkoutRequestID, txn.Status)
	return &ReconcileResult{Transaction: txn}, nil
}

// GetStatus returns the transaction for a checkout request id.
func (s *PaymentService) GetStatus(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, fmt.Errorf("%w: checkout request id is required", ErrValidation)
	}
	return s.store.GetByCheckoutRequestID(ctx, checkoutRequestID)
}

// ListTransactions returns transactions, optionally filtered by status.
func (s *PaymentService) ListTransactions(ctx context.Context, statusFilter string) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.store.List(ctx, statusFilter)
}

// ListStalePending returns pending transactions older than the given age.
// The core never expires these itself; this is the input for an external
// reconciliation sweep.
func (s *PaymentService) ListStalePending(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.store.FindPending(ctx, olderThan)
}

// extractSTKCallback digs Body.stkCallback out of the raw payload.
func extractSTKCallback(payload map[string]interface{}) (map[string]interface{}, bool) {
	body, ok := payload["Body"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	callback, ok := body["stkCallback"].(map[string]interface{})
	return callback, ok
}

// extractCallbackMetadata flattens CallbackMetadata.Item into a name→value map.
func extractCallbackMetadata(callback map[string]interface{}) map[string]interface{} {
	meta := map[string]interface{}{}
	md, ok := callback["CallbackMetadata"].(map[string]interface{})
	if !ok {
		return meta
	}
	items, ok := md["Item"].([]interface{})
	if !ok {
		return meta
	}
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name, ok := item["Name"].(string)
		if !ok {
			continue
		}
		meta[name] = item["Value"]
	}
	return meta
}

// asInt64 accepts the numeric shapes a decoded JSON value can take.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	default:
		return 0, false
	}
}

// asNumericString renders a value the gateway sends as either a string or a
// bare number (phone numbers, dates) as its digit string.
func asNumericString(v interface{}) (string, bool) {
	switch n := v.(type) {
	case string:
		if n == "" {
			return "", false
		}
		return n, true
	case float64:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case json.Number:
		return n.String(), true
	default:
		return "", false
	}
}
