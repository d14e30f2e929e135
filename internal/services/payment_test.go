package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukamart/dukapay-gobackend/internal/models"
)

type fakeGateway struct {
	ack   *STKPushAck
	err   error
	calls int
	last  STKPushParams
}

func (g *fakeGateway) InitiateSTKPush(ctx context.Context, p STKPushParams) (*STKPushAck, error) {
	g.calls++
	g.last = p
	if g.err != nil {
		return nil, g.err
	}
	return g.ack, nil
}

// memStore is an in-memory TransactionStore with the same conditional-update
// semantics as the Mongo implementation.
type memStore struct {
	mu   sync.Mutex
	txns map[string]*models.Transaction
}

func newMemStore() *memStore {
	return &memStore{txns: map[string]*models.Transaction{}}
}

func (s *memStore) Create(ctx context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txns[txn.CheckoutRequestID]; exists {
		return fmt.Errorf("%w: checkout_request_id %s", ErrDuplicateTransaction, txn.CheckoutRequestID)
	}
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt
	copied := *txn
	s.txns[txn.CheckoutRequestID] = &copied
	return nil
}

func (s *memStore) GetByCheckoutRequestID(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("%w: checkout_request_id %s", ErrTransactionNotFound, id)
	}
	copied := *txn
	return &copied, nil
}

func (s *memStore) CompleteTerminal(ctx context.Context, id string, update TerminalUpdate) (*models.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: checkout_request_id %s", ErrTransactionNotFound, id)
	}
	if txn.Status != models.StatusPending {
		copied := *txn
		return &copied, false, nil
	}
	txn.Status = update.Status
	txn.UpdatedAt = time.Now()
	if update.MpesaReceiptNumber != "" {
		txn.MpesaReceiptNumber = update.MpesaReceiptNumber
	}
	if update.ResultDesc != "" {
		txn.ResultDesc = update.ResultDesc
	}
	if update.TransactionDate != "" {
		txn.TransactionDate = update.TransactionDate
	}
	if update.Amount > 0 {
		txn.Amount = update.Amount
	}
	if update.PhoneNumber != "" {
		txn.PhoneNumber = update.PhoneNumber
	}
	if update.CallbackData != nil {
		txn.CallbackData = update.CallbackData
	}
	copied := *txn
	return &copied, true, nil
}

func (s *memStore) List(ctx context.Context, statusFilter string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, txn := range s.txns {
		if statusFilter == "" || txn.Status == statusFilter {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (s *memStore) FindPending(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []models.Transaction
	for _, txn := range s.txns {
		if txn.Status == models.StatusPending && !txn.CreatedAt.After(cutoff) {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func decodePayload(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func successCallback(checkoutRequestID string) string {
	return fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": %q,
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 100},
						{"Name": "MpesaReceiptNumber", "Value": "QAX123"},
						{"Name": "TransactionDate", "Value": 20240601134509},
						{"Name": "PhoneNumber", "Value": 254700000000}
					]
				}
			}
		}
	}`, checkoutRequestID)
}

func TestInitiateValidation(t *testing.T) {
	gateway := &fakeGateway{}
	svc := NewPaymentService(gateway, newMemStore())

	_, err := svc.Initiate(context.Background(), 0, "254700000000", "ORDER1", "desc")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Initiate(context.Background(), 100, "", "ORDER1", "desc")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Initiate(context.Background(), 100, "not-a-number", "ORDER1", "desc")
	assert.ErrorIs(t, err, ErrValidation)

	// No gateway call is made on validation failure.
	assert.Zero(t, gateway.calls)
}

func TestInitiatePersistsPendingTransaction(t *testing.T) {
	gateway := &fakeGateway{ack: &STKPushAck{
		MerchantRequestID: "mr-1",
		CheckoutRequestID: "ws_CO_1",
		ResponseCode:      "0",
	}}
	store := newMemStore()
	svc := NewPaymentService(gateway, store)

	txn, err := svc.Initiate(context.Background(), 100, "254700000000", "ORDER12345678", "Order payment desc")
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_1", txn.CheckoutRequestID)
	assert.Equal(t, models.StatusPending, txn.Status)
	assert.Equal(t, int64(100), txn.Amount)
	// The stored record keeps the untruncated caller-supplied values.
	assert.Equal(t, "ORDER12345678", txn.AccountReference)
	assert.Equal(t, "Order payment desc", txn.TransactionDesc)

	stored, err := store.GetByCheckoutRequestID(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestInitiateAtomicity(t *testing.T) {
	for _, gatewayErr := range []error{ErrGatewayAuth, ErrGatewayRejected, ErrGatewayUnreachable} {
		gateway := &fakeGateway{err: fmt.Errorf("%w: boom", gatewayErr)}
		store := newMemStore()
		svc := NewPaymentService(gateway, store)

		_, err := svc.Initiate(context.Background(), 100, "254700000000", "ORDER1", "desc")
		assert.ErrorIs(t, err, gatewayErr)

		// No transaction exists after a failed initiation.
		txns, listErr := store.List(context.Background(), "")
		require.NoError(t, listErr)
		assert.Empty(t, txns)
	}
}

func TestReconcileSuccessAppliesMetadata(t *testing.T) {
	gateway := &fakeGateway{ack: &STKPushAck{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}}
	store := newMemStore()
	svc := NewPaymentService(gateway, store)

	_, err := svc.Initiate(context.Background(), 90, "254711111111", "ORDER1", "desc")
	require.NoError(t, err)

	result, err := svc.Reconcile(context.Background(), decodePayload(t, successCallback("ws_CO_1")))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, models.StatusPaid, result.Transaction.Status)
	assert.Equal(t, "QAX123", result.Transaction.MpesaReceiptNumber)
	// Callback metadata is authoritative and overwrites initiation values.
	assert.Equal(t, int64(100), result.Transaction.Amount)
	assert.Equal(t, "254700000000", result.Transaction.PhoneNumber)
	assert.Equal(t, "20240601134509", result.Transaction.TransactionDate)
	assert.NotNil(t, result.Transaction.CallbackData)
}

func TestReconcileFailureRecordsDescription(t *testing.T) {
	gateway := &fakeGateway{ack: &STKPushAck{CheckoutRequestID: "ws_CO_2", ResponseCode: "0"}}
	store := newMemStore()
	svc := NewPaymentService(gateway, store)

	_, err := svc.Initiate(context.Background(), 100, "254700000000", "ORDER1", "desc")
	require.NoError(t, err)

	payload := decodePayload(t, `{
		"Body": {
			"stkCallback": {
				"CheckoutRequestID": "ws_CO_2",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`)
	result, err := svc.Reconcile(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, result.Transaction.Status)
	assert.Equal(t, "Request cancelled by user", result.Transaction.ResultDesc)
	assert.Empty(t, result.Transaction.MpesaReceiptNumber)
}

func TestReconcileIdempotent(t *testing.T) {
	gateway := &fakeGateway{ack: &STKPushAck{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}}
	store := newMemStore()
	svc := NewPaymentService(gateway, store)

	_, err := svc.Initiate(context.Background(), 100, "254700000000", "ORDER1", "desc")
	require.NoError(t, err)

	first, err := svc.Reconcile(context.Background(), decodePayload(t, successCallback("ws_CO_1")))
	require.NoError(t, err)
	require.False(t, first.Duplicate)
	firstUpdated := first.Transaction.UpdatedAt

	// Same callback again: success no-op returning the stored terminal state.
	second, err := svc.Reconcile(context.Background(), decodePayload(t, successCallback("ws_CO_1")))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, models.StatusPaid, second.Transaction.Status)
	assert.Equal(t, "QAX123", second.Transaction.MpesaReceiptNumber)
	assert.Equal(t, firstUpdated, second.Transaction.UpdatedAt)

	// A differently-shaped failure callback cannot reverse a terminal state.
	failure := decodePayload(t, `{
		"Body": {
			"stkCallback": {
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode": 1,
				"ResultDesc": "late failure"
			}
		}
	}`)
	third, err := svc.Reconcile(context.Background(), failure)
	require.NoError(t, err)
	assert.True(t, third.Duplicate)
	assert.Equal(t, models.StatusPaid, third.Transaction.Status)
	assert.Equal(t, "QAX123", third.Transaction.MpesaReceiptNumber)
}

func TestReconcileUnknownCheckoutRequestID(t *testing.T) {
	svc := NewPaymentService(&fakeGateway{}, newMemStore())

	_, err := svc.Reconcile(context.Background(), decodePayload(t, successCallback("unknown-id")))
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestReconcileMalformedPayload(t *testing.T) {
	svc := NewPaymentService(&fakeGateway{}, newMemStore())

	for _, raw := range []string{
		`{}`,
		`{"Body": {}}`,
		`{"Body": {"stkCallback": {}}}`,
		`{"Body": {"stkCallback": {"ResultCode": 0}}}`,
		`{"Body": {"stkCallback": {"CheckoutRequestID": "ws_CO_1"}}}`,
	} {
		_, err := svc.Reconcile(context.Background(), decodePayload(t, raw))
		assert.ErrorIs(t, err, ErrValidation, "payload %s", raw)
	}
}

func TestReconcileConcurrentCallbacksSingleWinner(t *testing.T) {
	gateway := &fakeGateway{ack: &STKPushAck{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}}
	store := newMemStore()
	svc := NewPaymentService(gateway, store)

	_, err := svc.Initiate(context.Background(), 100, "254700000000", "ORDER1", "desc")
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	applied := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Reconcile(context.Background(), decodePayload(t, successCallback("ws_CO_1")))
			if err == nil && !result.Duplicate {
				applied[i] = true
			}
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, a := range applied {
		if a {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one callback applies the transition")

	final, err := store.GetByCheckoutRequestID(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, final.Status)
}

func TestCreateDuplicateCheckoutRequestID(t *testing.T) {
	store := newMemStore()
	txn := &models.Transaction{CheckoutRequestID: "ws_CO_1", Status: models.StatusPending}
	require.NoError(t, store.Create(context.Background(), txn))

	err := store.Create(context.Background(), &models.Transaction{CheckoutRequestID: "ws_CO_1", Status: models.StatusPending})
	assert.True(t, errors.Is(err, ErrDuplicateTransaction))
}

func TestGetStatus(t *testing.T) {
	gateway := &fakeGateway{ack: &STKPushAck{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}}
	store := newMemStore()
	svc := NewPaymentService(gateway, store)

	_, err := svc.Initiate(context.Background(), 100, "254700000000", "ORDER1", "desc")
	require.NoError(t, err)

	txn, err := svc.GetStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, txn.Status)

	_, err = svc.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = svc.GetStatus(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListStalePending(t *testing.T) {
	gateway := &fakeGateway{ack: &STKPushAck{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}}
	store := newMemStore()
	svc := NewPaymentService(gateway, store)

	_, err := svc.Initiate(context.Background(), 100, "254700000000", "ORDER1", "desc")
	require.NoError(t, err)

	stale, err := svc.ListStalePending(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	stale, err = svc.ListStalePending(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// A reconciled transaction drops out of the pending sweep.
	_, err = svc.Reconcile(context.Background(), decodePayload(t, successCallback("ws_CO_1")))
	require.NoError(t, err)

	stale, err = svc.ListStalePending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
