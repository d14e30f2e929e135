package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukamart/dukapay-gobackend/internal/models"
)

// TerminalUpdate is the one-shot transition applied when a callback arrives.
// Metadata fields are authoritative: a non-zero Amount or PhoneNumber
// overwrites the values recorded at initiation.
type TerminalUpdate struct {
	Status             string
	MpesaReceiptNumber string
	ResultDesc         string
	TransactionDate    string
	Amount             int64
	PhoneNumber        string
	CallbackData       bson.M
}

// MongoTransactionStore persists transactions in the "transactions"
// collection with a unique index on checkout_request_id.
type MongoTransactionStore struct {
	collection *mongo.Collection
}

func NewMongoTransactionStore(db *mongo.Database) *MongoTransactionStore {
	return &MongoTransactionStore{collection: db.Collection("transactions")}
}

// EnsureIndexes creates the indexes the store relies on. The unique index on
// checkout_request_id is what turns a correlation-id collision into a
// duplicate-key error instead of a silent second record.
func (s *MongoTransactionStore) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.M{"checkout_request_id": 1},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.M{"status": 1, "created_at": -1}},
		{Keys: bson.M{"phone_number": 1, "created_at": -1}},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		log.Printf("Failed to create transaction indexes: %v", err)
		return fmt.Errorf("failed to create transaction indexes: %v", err)
	}
	return nil
}

// Create inserts a new pending transaction.
func (s *MongoTransactionStore) Create(ctx context.Context, txn *models.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if txn.ID.IsZero() {
		txn.ID = primitive.NewObjectID()
	}
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt

	if _, err := s.collection.InsertOne(ctx, txn); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			log.Printf("Duplicate checkout_request_id on insert: %s", txn.CheckoutRequestID)
			return fmt.Errorf("%w: checkout_request_id %s", ErrDuplicateTransaction, txn.CheckoutRequestID)
		}
		log.Printf("Failed to save transaction %s: %v", txn.CheckoutRequestID, err)
		return fmt.Errorf("failed to save transaction: %v", err)
	}
	return nil
}

// GetByCheckoutRequestID looks a transaction up by its correlation id.
func (s *MongoTransactionStore) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var txn models.Transaction
	err := s.collection.FindOne(ctx, bson.M{"checkout_request_id": checkoutRequestID}).Decode(&txn)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: checkout_request_id %s", ErrTransactionNotFound, checkoutRequestID)
		}
		log.Printf("Failed to fetch transaction %s: %v", checkoutRequestID, err)
		return nil, fmt.Errorf("failed to fetch transaction: %v", err)
	}
	return &txn, nil
}

// CompleteTerminal applies the terminal transition as a single conditional
// update: it matches only while status is still pending, so concurrent or
// duplicate callbacks for the same id serialize here and exactly one wins.
// Returns the resulting record and whether this call applied the transition;
// applied == false with a nil error means the record was already terminal.
func (s *MongoTransactionStore) CompleteTerminal(ctx context.Context, checkoutRequestID string, update TerminalUpdate) (*models.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"status":     update.Status,
		"updated_at": time.Now(),
	}
	if update.MpesaReceiptNumber != "" {
		set["mpesa_receipt_number"] = update.MpesaReceiptNumber
	}
	if update.ResultDesc != "" {
		set["result_desc"] = update.ResultDesc
	}
	if update.TransactionDate != "" {
		set["transaction_date"] = update.TransactionDate
	}
	if update.Amount > 0 {
		set["amount"] = update.Amount
	}
	if update.PhoneNumber != "" {
		set["phone_number"] = update.PhoneNumber
	}
	if update.CallbackData != nil {
		set["callback_data"] = update.CallbackData
	}

	filter := bson.M{
		"checkout_request_id": checkoutRequestID,
		"status":              models.StatusPending,
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var txn models.Transaction
	err := s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&txn)
	if err == nil {
		return &txn, true, nil
	}
	if err != mongo.ErrNoDocuments {
		log.Printf("Failed to update transaction %s: %v", checkoutRequestID, err)
		return nil, false, fmt.Errorf("failed to update transaction: %v", err)
	}

	// No pending record matched: either the id is unknown or the record is
	// already terminal. The latter is the idempotent duplicate path.
	existing, err := s.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// List returns transactions, newest first, optionally filtered by status.
func (s *MongoTransactionStore) List(ctx context.Context, statusFilter string) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{}
	if statusFilter != "" {
		if statusFilter != models.StatusPending && statusFilter != models.StatusPaid && statusFilter != models.StatusFailed {
			return nil, fmt.Errorf("%w: invalid status filter %q", ErrValidation, statusFilter)
		}
		query["status"] = statusFilter
	}

	cur, err := s.collection.Find(ctx, query, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		log.Printf("Failed to fetch transactions: %v", err)
		return nil, fmt.Errorf("failed to fetch transactions: %v", err)
	}

	var txns []models.Transaction
	defer cur.Close(ctx)
	if err := cur.All(ctx, &txns); err != nil {
		log.Printf("Failed to decode transactions: %v", err)
		return nil, fmt.Errorf("failed to decode transactions: %v", err)
	}
	return txns, nil
}

// FindPending returns pending transactions older than the given age, for an
// external reconciliation sweep. The core itself never expires records.
func (s *MongoTransactionStore) FindPending(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{
		"status":     models.StatusPending,
		"created_at": bson.M{"$lte": time.Now().Add(-olderThan)},
	}
	cur, err := s.collection.Find(ctx, query, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		log.Printf("Failed to fetch pending transactions: %v", err)
		return nil, fmt.Errorf("failed to fetch pending transactions: %v", err)
	}

	var txns []models.Transaction
	defer cur.Close(ctx)
	if err := cur.All(ctx, &txns); err != nil {
		log.Printf("Failed to decode pending transactions: %v", err)
		return nil, fmt.Errorf("failed to decode pending transactions: %v", err)
	}
	return txns, nil
}
