package orders_test

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-order-settlement.git/internal/orders"
)

// memStore backs the service tests with an in-memory, journaled copy of the
// store. Begin takes a global lock, standing in for the row locks the real
// LockForOrder would hold, so concurrent creators serialize the same way they
// do against postgres. Nothing becomes visible until Commit applies the
// journal; Rollback drops it.
type memStore struct {
	mu sync.Mutex

	products map[string]orders.LockedProduct
	orders   map[string]orders.Order
	lines    map[string][]orders.OrderLine

	pending    *journal
	failCommit bool
}

type journal struct {
	stockDelta map[string]int
	order      *orders.Order
	lines      []orders.OrderLine
	status     map[string]orders.Status
}

func newMemStore() *memStore {
	return &memStore{
		products: map[string]orders.LockedProduct{},
		orders:   map[string]orders.Order{},
		lines:    map[string][]orders.OrderLine{},
	}
}

func (m *memStore) addProduct(id, name string, priceCents int64, stock int) {
	m.products[id] = orders.LockedProduct{ID: id, Name: name, PriceCents: priceCents, Stock: stock}
}

func (m *memStore) seedOrder(o orders.Order, lines []orders.OrderLine) {
	m.orders[o.ID] = o
	m.lines[o.ID] = lines
}

func (m *memStore) stock(id string) int { return m.products[id].Stock }

// memTx only carries commit/rollback; every store method ignores the tx
// handle. The embedded pgx.Tx is nil and panics if anything else is called,
// which is exactly what the tests want to know about.
type memTx struct {
	pgx.Tx
	store *memStore
	done  bool
}

func (m *memStore) Begin(ctx context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	m.pending = &journal{stockDelta: map[string]int{}, status: map[string]orders.Status{}}
	return &memTx{store: m}, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("tx already finished")
	}
	t.done = true
	m := t.store
	defer m.mu.Unlock()
	if m.failCommit {
		m.pending = nil
		return errors.New("commit failed")
	}
	j := m.pending
	m.pending = nil
	for id, d := range j.stockDelta {
		p := m.products[id]
		p.Stock += d
		m.products[id] = p
	}
	if j.order != nil {
		m.orders[j.order.ID] = *j.order
		m.lines[j.order.ID] = j.lines
	}
	for id, s := range j.status {
		o := m.orders[id]
		o.Status = s
		m.orders[id] = o
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.pending = nil
	t.store.mu.Unlock()
	return nil
}

// InventoryStore

func (m *memStore) LockForOrder(ctx context.Context, tx pgx.Tx, productIDs []string) ([]orders.LockedProduct, error) {
	seen := map[string]bool{}
	var out []orders.LockedProduct
	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) Decrement(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	p, ok := m.products[productID]
	if !ok {
		return errors.New("no such product")
	}
	if p.Stock+m.pending.stockDelta[productID] < qty {
		return &orders.InsufficientStockError{ProductID: productID, Requested: qty}
	}
	m.pending.stockDelta[productID] -= qty
	return nil
}

func (m *memStore) Increment(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	if _, ok := m.products[productID]; !ok {
		return orders.ErrProductNotFound
	}
	m.pending.stockDelta[productID] += qty
	return nil
}

func (m *memStore) Restore(ctx context.Context, tx pgx.Tx, orderID string) error {
	for _, l := range m.lines[orderID] {
		m.pending.stockDelta[l.ProductID] += l.Quantity
	}
	return nil
}

// OrderStore

func (m *memStore) Insert(ctx context.Context, tx pgx.Tx, o orders.Order, lines []orders.OrderLine) error {
	m.pending.order = &o
	m.pending.lines = lines
	return nil
}

func (m *memStore) StatusForUpdate(ctx context.Context, tx pgx.Tx, orderID, userID string) (orders.Status, error) {
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return "", orders.ErrOrderNotFound
	}
	return o.Status, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, next orders.Status) error {
	m.pending.status[orderID] = next
	return nil
}

func (m *memStore) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			o.Lines = m.lines[o.ID]
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) TotalAndStatus(ctx context.Context, orderID, userID string) (int64, orders.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return 0, "", orders.ErrOrderNotFound
	}
	return o.TotalCents, o.Status, nil
}
