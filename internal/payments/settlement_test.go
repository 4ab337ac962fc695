package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement.git/internal/orders"
	"github.com/ariefcatur/go-order-settlement.git/internal/payments"
)

// settleStore fakes the pieces of the store the settler touches, with a
// commit/rollback journal so a failed transaction really does leave nothing
// behind.
type settleStore struct {
	mu sync.Mutex

	payments map[string]payments.Payment // key: provider|provider_payment_id
	status   map[string]orders.Status
	restores map[string]int

	pending    *settleJournal
	failCommit bool
}

type settleJournal struct {
	payment  *payments.Payment
	status   map[string]orders.Status
	restores []string
}

func newSettleStore() *settleStore {
	return &settleStore{
		payments: map[string]payments.Payment{},
		status:   map[string]orders.Status{},
		restores: map[string]int{},
	}
}

func payKey(provider, ppid string) string { return provider + "|" + ppid }

type settleTx struct {
	pgx.Tx
	store *settleStore
	done  bool
}

func (s *settleStore) Begin(ctx context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	s.pending = &settleJournal{status: map[string]orders.Status{}}
	return &settleTx{store: s}, nil
}

func (t *settleTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("tx already finished")
	}
	t.done = true
	s := t.store
	defer s.mu.Unlock()
	if s.failCommit {
		s.pending = nil
		return errors.New("commit failed")
	}
	j := s.pending
	s.pending = nil
	if j.payment != nil {
		s.payments[payKey(j.payment.Provider, j.payment.ProviderPaymentID)] = *j.payment
	}
	for id, st := range j.status {
		s.status[id] = st
	}
	for _, id := range j.restores {
		s.restores[id]++
	}
	return nil
}

func (t *settleTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.pending = nil
	t.store.mu.Unlock()
	return nil
}

func (s *settleStore) ClaimSettlement(ctx context.Context, tx pgx.Tx, p payments.Payment) error {
	if _, ok := s.status[p.OrderID]; !ok {
		return payments.ErrUnknownOrder
	}
	if existing, ok := s.payments[payKey(p.Provider, p.ProviderPaymentID)]; ok {
		if existing.Status != payments.StatusPending {
			return payments.ErrDuplicateEvent
		}
	}
	s.pending.payment = &p
	return nil
}

func (s *settleStore) StatusLocked(ctx context.Context, tx pgx.Tx, orderID string) (orders.Status, error) {
	st, ok := s.status[orderID]
	if !ok {
		return "", orders.ErrOrderNotFound
	}
	return st, nil
}

func (s *settleStore) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, next orders.Status) error {
	s.pending.status[orderID] = next
	return nil
}

func (s *settleStore) Restore(ctx context.Context, tx pgx.Tx, orderID string) error {
	s.pending.restores = append(s.pending.restores, orderID)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (p *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, value)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func newSettler(s *settleStore) (*payments.Settler, *fakePublisher, *fakePublisher) {
	paid := &fakePublisher{}
	failed := &fakePublisher{}
	return &payments.Settler{
		DB:           s,
		Payments:     s,
		Orders:       s,
		Inventory:    s,
		ProducerPaid: paid,
		ProducerFail: failed,
		ServiceName:  "settlement-test",
		Log:          zap.NewNop(),
	}, paid, failed
}

func successEvent(orderID string) payments.Event {
	return payments.Event{
		Type:              payments.EventSucceeded,
		Provider:          "stripe",
		ProviderPaymentID: "pi_123",
		OrderID:           orderID,
		AmountCents:       2000,
		Currency:          "usd",
	}
}

func TestHandleEvent_SuccessMarksPaid(t *testing.T) {
	s := newSettleStore()
	s.status["o1"] = orders.StatusCreated
	settler, paid, failed := newSettler(s)

	if err := settler.HandleEvent(context.Background(), successEvent("o1")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if got := s.status["o1"]; got != orders.StatusPaid {
		t.Errorf("order status = %s, want PAID", got)
	}
	p, ok := s.payments[payKey("stripe", "pi_123")]
	if !ok {
		t.Fatal("payment row missing")
	}
	if p.Status != payments.StatusSuccess || p.AmountCents != 2000 {
		t.Errorf("payment row = %+v", p)
	}
	if paid.count() != 1 || failed.count() != 0 {
		t.Errorf("published paid=%d failed=%d", paid.count(), failed.count())
	}
}

func TestHandleEvent_DuplicateDeliveryIsIdempotent(t *testing.T) {
	s := newSettleStore()
	s.status["o1"] = orders.StatusCreated
	settler, paid, _ := newSettler(s)
	ev := successEvent("o1")

	if err := settler.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := settler.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("second delivery must still acknowledge: %v", err)
	}

	if len(s.payments) != 1 {
		t.Errorf("payment rows = %d, want exactly 1", len(s.payments))
	}
	if got := s.status["o1"]; got != orders.StatusPaid {
		t.Errorf("order status = %s after redelivery, want PAID", got)
	}
	if paid.count() != 1 {
		t.Errorf("paid events published = %d, want 1", paid.count())
	}
}

func TestHandleEvent_ClaimsPendingIntentRow(t *testing.T) {
	s := newSettleStore()
	s.status["o1"] = orders.StatusCreated
	s.payments[payKey("stripe", "pi_123")] = payments.Payment{
		Provider: "stripe", ProviderPaymentID: "pi_123",
		OrderID: "o1", Status: payments.StatusPending,
	}
	settler, _, _ := newSettler(s)

	if err := settler.HandleEvent(context.Background(), successEvent("o1")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if got := s.payments[payKey("stripe", "pi_123")].Status; got != payments.StatusSuccess {
		t.Errorf("pending row not upgraded: status = %s", got)
	}
	if got := s.status["o1"]; got != orders.StatusPaid {
		t.Errorf("order status = %s, want PAID", got)
	}
}

func TestHandleEvent_FailureCancelsAndRestocks(t *testing.T) {
	s := newSettleStore()
	s.status["o1"] = orders.StatusCreated
	settler, paid, failed := newSettler(s)

	ev := payments.Event{
		Type:              payments.EventFailed,
		Provider:          "stripe",
		ProviderPaymentID: "pi_999",
		OrderID:           "o1",
		AmountCents:       2000,
		Currency:          "usd",
		FailureReason:     "card_declined",
	}
	if err := settler.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if got := s.status["o1"]; got != orders.StatusCancelled {
		t.Errorf("order status = %s, want CANCELLED", got)
	}
	if s.restores["o1"] != 1 {
		t.Errorf("inventory restores = %d, want 1", s.restores["o1"])
	}
	p := s.payments[payKey("stripe", "pi_999")]
	if p.Status != payments.StatusFailed || p.FailureReason != "card_declined" {
		t.Errorf("payment row = %+v", p)
	}
	if paid.count() != 0 || failed.count() != 1 {
		t.Errorf("published paid=%d failed=%d", paid.count(), failed.count())
	}
}

func TestHandleEvent_SuccessOnSettledOrderLeavesItAlone(t *testing.T) {
	s := newSettleStore()
	s.status["o1"] = orders.StatusShipped
	settler, paid, _ := newSettler(s)

	if err := settler.HandleEvent(context.Background(), successEvent("o1")); err != nil {
		t.Fatalf("HandleEvent must acknowledge: %v", err)
	}
	if got := s.status["o1"]; got != orders.StatusShipped {
		t.Errorf("order status = %s, want SHIPPED untouched", got)
	}
	if _, ok := s.payments[payKey("stripe", "pi_123")]; !ok {
		t.Error("payment row should still be recorded for audit")
	}
	if paid.count() != 0 {
		t.Errorf("published %d paid events for a no-op settlement", paid.count())
	}
}

func TestHandleEvent_DropsUnusableEvents(t *testing.T) {
	s := newSettleStore()
	s.status["o1"] = orders.StatusCreated
	settler, paid, failed := newSettler(s)
	ctx := context.Background()

	t.Run("missing order id", func(t *testing.T) {
		ev := successEvent("")
		if err := settler.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("must acknowledge: %v", err)
		}
	})
	t.Run("unknown order id", func(t *testing.T) {
		if err := settler.HandleEvent(ctx, successEvent("ghost")); err != nil {
			t.Fatalf("must acknowledge: %v", err)
		}
	})
	t.Run("irrelevant type", func(t *testing.T) {
		ev := successEvent("o1")
		ev.Type = "payment.refunded"
		if err := settler.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("must acknowledge: %v", err)
		}
	})

	if len(s.payments) != 0 || s.status["o1"] != orders.StatusCreated {
		t.Errorf("dropped events left effects: payments=%d status=%s", len(s.payments), s.status["o1"])
	}
	if paid.count() != 0 || failed.count() != 0 {
		t.Error("dropped events must not publish")
	}
}

func TestHandleEvent_CommitFailureIsRetriable(t *testing.T) {
	s := newSettleStore()
	s.status["o1"] = orders.StatusCreated
	s.failCommit = true
	settler, paid, _ := newSettler(s)

	if err := settler.HandleEvent(context.Background(), successEvent("o1")); err == nil {
		t.Fatal("commit failure must propagate so the provider retries")
	}
	if len(s.payments) != 0 {
		t.Error("payment row committed despite failure")
	}
	if got := s.status["o1"]; got != orders.StatusCreated {
		t.Errorf("order status = %s, want CREATED untouched", got)
	}
	if paid.count() != 0 {
		t.Error("nothing may publish before commit")
	}

	// Retry succeeds once the store recovers.
	s.failCommit = false
	if err := settler.HandleEvent(context.Background(), successEvent("o1")); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if got := s.status["o1"]; got != orders.StatusPaid {
		t.Errorf("order status = %s after retry, want PAID", got)
	}
}
