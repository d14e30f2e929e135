package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction statuses. A transaction starts pending and moves exactly once
// to paid or failed; terminal states are never left.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// Transaction is one STK push attempt. CheckoutRequestID is issued by the
// gateway on the synchronous accept and is the only key the asynchronous
// callback can be matched on.
type Transaction struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CheckoutRequestID  string             `bson:"checkout_request_id" json:"checkout_request_id"`
	MerchantRequestID  string             `bson:"merchant_request_id" json:"merchant_request_id"`
	PhoneNumber        string             `bson:"phone_number" json:"phone_number"`
	Amount             int64              `bson:"amount" json:"amount"`
	AccountReference   string             `bson:"account_reference" json:"account_reference"`
	TransactionDesc    string             `bson:"transaction_desc" json:"transaction_desc"`
	Status             string             `bson:"status" json:"status"`
	MpesaReceiptNumber string             `bson:"mpesa_receipt_number,omitempty" json:"mpesa_receipt_number,omitempty"`
	ResultDesc         string             `bson:"result_desc,omitempty" json:"result_desc,omitempty"`
	TransactionDate    string             `bson:"transaction_date,omitempty" json:"transaction_date,omitempty"`
	CallbackData       bson.M             `bson:"callback_data,omitempty" json:"callback_data,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// Terminal reports whether the transaction has reached a final state.
func (t *Transaction) Terminal() bool {
	return t.Status == StatusPaid || t.Status == StatusFailed
}
