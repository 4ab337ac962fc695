// Package statuscache keeps the redis order-status cache in step with the
// lifecycle events the API and settler publish, so status reads rarely touch
// postgres.
package statuscache

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement.git/internal/orders"
	"github.com/ariefcatur/go-order-settlement.git/internal/redisx"
)

// StatusCache is satisfied by *redisx.StatusStore.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
	Set(ctx context.Context, orderID string, v redisx.OrderStatus) error
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Worker struct {
	Cache StatusCache
	Log   *zap.Logger
}

// statusFor maps an event type to the status the order reached. Unknown
// types are skipped, not errors: the group may subscribe wider topics later.
func statusFor(eventType string) orders.Status {
	switch eventType {
	case orders.EventOrderCreated:
		return orders.StatusCreated
	case orders.EventOrderPaid:
		return orders.StatusPaid
	case orders.EventOrderCancelled, orders.EventPaymentFailed:
		return orders.StatusCancelled
	default:
		return ""
	}
}

// HandleEvent is the consumer handler. Returning nil commits the offset.
//
// The group reads four topics and kafka orders nothing across them, so a
// lagging order.created can arrive after the order.paid it preceded. Writes
// therefore only ever advance the cached status along the lifecycle table; an
// event whose status the cache has already passed is acknowledged untouched.
func (w *Worker) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		w.Log.Warn("malformed envelope", zap.Error(err))
		return nil
	}

	status := statusFor(env.EventType)
	if status == "" || env.CorrelationID == "" {
		return nil
	}

	if seen, _ := w.Cache.Seen(ctx, env.EventID); seen {
		return nil
	}

	cur, ok, err := w.Cache.Get(ctx, env.CorrelationID)
	if err != nil {
		return err
	}
	next := redisx.OrderStatus{Status: string(status)}
	if ok {
		if !orders.CanTransition(orders.Status(cur.Status), status) {
			return nil
		}
		next.UserID = cur.UserID
	}

	if err := w.Cache.Set(ctx, env.CorrelationID, next); err != nil {
		// Dedup not marked yet, so the redelivery retries the write.
		return err
	}
	_ = w.Cache.Mark(ctx, env.EventID)

	w.Log.Debug("status cache updated",
		zap.String("order_id", env.CorrelationID),
		zap.String("status", string(status)))
	return nil
}
