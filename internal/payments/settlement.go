package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-settlement.git/internal/kafka"
	"github.com/ariefcatur/go-order-settlement.git/internal/orders"
)

type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type SettlementStore interface {
	ClaimSettlement(ctx context.Context, tx pgx.Tx, p Payment) error
}

type OrderStatusStore interface {
	StatusLocked(ctx context.Context, tx pgx.Tx, orderID string) (orders.Status, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, next orders.Status) error
}

type StockRestorer interface {
	Restore(ctx context.Context, tx pgx.Tx, orderID string) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Settler applies one verified provider event to the order it references,
// exactly once. The payment row claim and every resulting mutation share one
// transaction; a returned error therefore always means nothing durable
// happened and the provider may safely redeliver.
type Settler struct {
	DB           TxStarter
	Payments     SettlementStore
	Orders       OrderStatusStore
	Inventory    StockRestorer
	ProducerPaid Publisher // order.paid
	ProducerFail Publisher // order.payment.failed
	ServiceName  string
	Log          *zap.Logger
}

// HandleEvent returns nil when the event is settled OR deliberately dropped
// (duplicate, unknown order, missing metadata); only a transaction failure
// propagates, and only then should the caller answer non-2xx.
func (s *Settler) HandleEvent(ctx context.Context, ev Event) error {
	if ev.Type != EventSucceeded && ev.Type != EventFailed {
		return nil
	}
	if ev.OrderID == "" {
		// Authentic but unusable: the intent was minted without our metadata.
		// Retrying will never fix it, so acknowledge and move on.
		s.Log.Warn("payment event without order id",
			zap.String("provider_payment_id", ev.ProviderPaymentID),
			zap.String("type", ev.Type))
		return nil
	}

	p := Payment{
		ID:                uuid.NewString(),
		OrderID:           ev.OrderID,
		UserID:            ev.UserID,
		Provider:          ev.Provider,
		ProviderPaymentID: ev.ProviderPaymentID,
		AmountCents:       ev.AmountCents,
		Currency:          ev.Currency,
	}
	if ev.Type == EventSucceeded {
		p.Status = StatusSuccess
	} else {
		p.Status = StatusFailed
		p.FailureReason = ev.FailureReason
		if p.FailureReason == "" {
			p.FailureReason = "payment failed"
		}
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency gate first, before any effect.
	switch err := s.Payments.ClaimSettlement(ctx, tx, p); {
	case errors.Is(err, ErrDuplicateEvent):
		s.Log.Debug("duplicate payment event",
			zap.String("order_id", ev.OrderID),
			zap.String("provider_payment_id", ev.ProviderPaymentID))
		return nil
	case errors.Is(err, ErrUnknownOrder):
		s.Log.Warn("payment event for unknown order",
			zap.String("order_id", ev.OrderID),
			zap.String("provider_payment_id", ev.ProviderPaymentID))
		return nil
	case err != nil:
		return err
	}

	cur, err := s.Orders.StatusLocked(ctx, tx, ev.OrderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			s.Log.Warn("payment event for missing order", zap.String("order_id", ev.OrderID))
			return nil
		}
		return err
	}

	mutated := false
	if ev.Type == EventSucceeded {
		if cur == orders.StatusCreated {
			if err := s.Orders.UpdateStatus(ctx, tx, ev.OrderID, orders.StatusPaid); err != nil {
				return err
			}
			mutated = true
		} else {
			// Already settled or mid-lifecycle: keep the payment row for the
			// audit trail, leave the order alone.
			s.Log.Info("success event on non-payable order",
				zap.String("order_id", ev.OrderID),
				zap.String("status", string(cur)))
		}
	} else {
		if cur == orders.StatusCreated {
			if err := s.Inventory.Restore(ctx, tx, ev.OrderID); err != nil {
				return err
			}
			if err := s.Orders.UpdateStatus(ctx, tx, ev.OrderID, orders.StatusCancelled); err != nil {
				return err
			}
			mutated = true
		} else {
			s.Log.Info("failure event on non-CREATED order",
				zap.String("order_id", ev.OrderID),
				zap.String("status", string(cur)))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.Log.Info("payment event settled",
		zap.String("order_id", ev.OrderID),
		zap.String("provider_payment_id", ev.ProviderPaymentID),
		zap.String("type", ev.Type),
		zap.Bool("order_mutated", mutated))

	if mutated {
		s.publish(ev)
	}
	return nil
}

// publish emits the post-commit lifecycle event. Fire-and-forget by design:
// the settlement already committed and must be acknowledged regardless.
func (s *Settler) publish(ev Event) {
	var (
		prod      Publisher
		eventType string
		payload   any
	)
	if ev.Type == EventSucceeded {
		prod, eventType = s.ProducerPaid, orders.EventOrderPaid
		payload = orders.OrderPaidPayload{
			OrderID:           ev.OrderID,
			Provider:          ev.Provider,
			ProviderPaymentID: ev.ProviderPaymentID,
			AmountCents:       ev.AmountCents,
		}
	} else {
		prod, eventType = s.ProducerFail, orders.EventPaymentFailed
		payload = orders.PaymentFailedPayload{
			OrderID:           ev.OrderID,
			Provider:          ev.Provider,
			ProviderPaymentID: ev.ProviderPaymentID,
			Reason:            ev.FailureReason,
		}
	}
	if prod == nil {
		return
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: ev.OrderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	prod.Publish(orders.PartitionKey(ev.OrderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
