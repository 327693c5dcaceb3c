// Package constants names the headers that travel with HTTP requests and bus
// messages, and the context keys their values are stored under.
package constants

type contextKey string

// Header names. They are lower case because NATS headers are case sensitive.
const (
	HeaderXRequestId      = "x-request-id"
	HeaderXIdempotencyKey = "x-idempotency-key"
	HeaderXTransactionId  = "x-transaction-id"
)

const (
	ContextKeyRequestID      contextKey = HeaderXRequestId
	ContextKeyIdempotencyKey contextKey = HeaderXIdempotencyKey
	// ContextKeyTransactionID holds the saga transaction id of the message
	// being consumed.
	ContextKeyTransactionID contextKey = HeaderXTransactionId
)
