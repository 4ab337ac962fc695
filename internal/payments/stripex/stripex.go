// Package stripex adapts the Stripe SDK to the provider ports in
// internal/payments. Nothing outside this package imports stripe-go.
package stripex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/ariefcatur/go-order-settlement.git/internal/payments"
)

const ProviderName = "stripe"

type Client struct {
	webhookSecret string
}

func New(secretKey, webhookSecret string) *Client {
	stripe.Key = secretKey
	return &Client{webhookSecret: webhookSecret}
}

// CreateIntent opens a provider-side intent tagged with the order id in
// metadata. The settlement handler trusts only that tag to find its order.
func (c *Client) CreateIntent(ctx context.Context, amountCents int64, currency, orderID, userID string) (payments.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderID)
	params.AddMetadata("user_id", userID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return payments.Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return payments.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// Decode verifies the webhook signature and maps the two intent outcomes the
// settler cares about. Every other event type comes back ok=false.
func (c *Client) Decode(payload []byte, signature string) (payments.Event, bool, error) {
	event, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return payments.Event{}, false, fmt.Errorf("%w: %v", payments.ErrBadSignature, err)
	}

	var evType string
	switch event.Type {
	case "payment_intent.succeeded":
		evType = payments.EventSucceeded
	case "payment_intent.payment_failed":
		evType = payments.EventFailed
	default:
		return payments.Event{}, false, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return payments.Event{}, false, fmt.Errorf("decode payment intent: %w", err)
	}

	ev := payments.Event{
		Type:              evType,
		Provider:          ProviderName,
		ProviderPaymentID: intent.ID,
		OrderID:           intent.Metadata["order_id"],
		UserID:            intent.Metadata["user_id"],
		AmountCents:       intent.Amount,
		Currency:          string(intent.Currency),
	}
	if intent.LastPaymentError != nil {
		ev.FailureReason = intent.LastPaymentError.Msg
	}
	return ev, true, nil
}
