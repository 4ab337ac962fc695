package payments

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement.git/internal/orders"
)

// OrderReader is the slice of the order store the issuer needs.
type OrderReader interface {
	TotalAndStatus(ctx context.Context, orderID, userID string) (int64, orders.Status, error)
}

type PendingRecorder interface {
	RecordPending(ctx context.Context, p Payment) error
}

// IntentService creates a provider-side payment intent for one order. The
// payable amount comes strictly from the persisted order total; a
// client-supplied amount never enters this path.
type IntentService struct {
	Orders   OrderReader
	Payments PendingRecorder
	Provider IntentCreator
	Name     string // provider name persisted on payment rows, e.g. "stripe"
	Currency string
	Log      *zap.Logger
}

func (s *IntentService) CreateIntent(ctx context.Context, userID, orderID string) (string, error) {
	total, status, err := s.Orders.TotalAndStatus(ctx, orderID, userID)
	if err != nil {
		return "", err
	}
	if status != orders.StatusCreated {
		return "", ErrOrderNotPayable
	}

	intent, err := s.Provider.CreateIntent(ctx, total, s.Currency, orderID, userID)
	if err != nil {
		return "", err
	}

	// Bookkeeping only. The webhook's own insert is the idempotency anchor,
	// so losing this row costs nothing but an audit trail entry.
	if err := s.Payments.RecordPending(ctx, Payment{
		ID:                uuid.NewString(),
		OrderID:           orderID,
		UserID:            userID,
		Provider:          s.Name,
		ProviderPaymentID: intent.ID,
		AmountCents:       total,
		Currency:          s.Currency,
		Status:            StatusPending,
	}); err != nil {
		s.Log.Warn("record pending payment",
			zap.String("order_id", orderID),
			zap.String("provider_payment_id", intent.ID),
			zap.Error(err))
	}

	s.Log.Info("payment intent created",
		zap.String("order_id", orderID),
		zap.String("provider_payment_id", intent.ID),
		zap.Int64("amount_cents", total))
	return intent.ClientSecret, nil
}
