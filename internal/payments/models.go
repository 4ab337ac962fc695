package payments

import (
	"context"
	"errors"
	"time"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
)

type Payment struct {
	ID                string
	OrderID           string
	UserID            string
	Provider          string
	ProviderPaymentID string
	AmountCents       int64
	Currency          string
	Status            PaymentStatus
	FailureReason     string
	CreatedAt         time.Time
}

// Event types as seen by the settler. The decoder collapses the provider's
// vocabulary down to these two; everything else is dropped at the boundary.
const (
	EventSucceeded = "payment.succeeded"
	EventFailed    = "payment.failed"
)

// Event is a provider webhook that already passed signature verification.
// OrderID comes from the intent metadata we minted; nothing else in the
// payload is trusted for routing.
type Event struct {
	Type              string
	Provider          string
	ProviderPaymentID string
	OrderID           string
	UserID            string
	AmountCents       int64
	Currency          string
	FailureReason     string
}

var (
	// ErrBadSignature means the raw payload failed verification. Nothing may
	// mutate on this path.
	ErrBadSignature = errors.New("webhook signature verification failed")

	// ErrDuplicateEvent is the idempotency gate firing: a payment row for
	// this (provider, provider_payment_id) already committed.
	ErrDuplicateEvent = errors.New("payment event already processed")

	// ErrUnknownOrder means the event references an order id we never issued.
	ErrUnknownOrder = errors.New("payment references unknown order")

	ErrOrderNotPayable = errors.New("order is not payable")
)

type Intent struct {
	ID           string
	ClientSecret string
}

// IntentCreator is the provider-side half of payment creation. Implemented by
// stripex; faked in tests.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amountCents int64, currency, orderID, userID string) (Intent, error)
}

// EventDecoder turns a raw webhook body plus signature header into a trusted
// Event, or fails with ErrBadSignature. Events the settler does not care
// about come back with ok=false.
type EventDecoder interface {
	Decode(payload []byte, signature string) (ev Event, ok bool, err error)
}
