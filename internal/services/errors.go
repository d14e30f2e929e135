package services

import "errors"

// Error taxonomy shared by the payment flow. Handlers branch on these with
// errors.Is to pick a status code instead of matching message strings.
var (
	// ErrValidation: bad caller input; the gateway was never contacted.
	ErrValidation = errors.New("validation failed")

	// ErrGatewayAuth: access token acquisition failed. Retryable by the
	// caller, never retried here.
	ErrGatewayAuth = errors.New("gateway authentication failed")

	// ErrGatewayRejected: the gateway declined the request synchronously.
	ErrGatewayRejected = errors.New("gateway rejected request")

	// ErrGatewayUnreachable: transport-level failure talking to the gateway.
	ErrGatewayUnreachable = errors.New("gateway unreachable")

	// ErrTransactionNotFound: no transaction matches the correlation id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateTransaction: a transaction with the same checkout request
	// id already exists. Checkout request ids are gateway-issued and unique,
	// so this signals a protocol violation rather than normal flow.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)
