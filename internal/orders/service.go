package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TxStarter is satisfied by *pgxpool.Pool.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type InventoryStore interface {
	LockForOrder(ctx context.Context, tx pgx.Tx, productIDs []string) ([]LockedProduct, error)
	Decrement(ctx context.Context, tx pgx.Tx, productID string, qty int) error
	Increment(ctx context.Context, tx pgx.Tx, productID string, qty int) error
	Restore(ctx context.Context, tx pgx.Tx, orderID string) error
}

type OrderStore interface {
	Insert(ctx context.Context, tx pgx.Tx, o Order, lines []OrderLine) error
	StatusForUpdate(ctx context.Context, tx pgx.Tx, orderID, userID string) (Status, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, next Status) error
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	TotalAndStatus(ctx context.Context, orderID, userID string) (int64, Status, error)
}

// Service orchestrates inventory and order writes inside one transaction per
// operation. Nothing here is ever observable half-applied.
type Service struct {
	DB        TxStarter
	Inventory InventoryStore
	Orders    OrderStore
	Log       *zap.Logger
}

// CreateOrder reserves stock and persists the order atomically:
// lock product rows -> check stock -> decrement -> snapshot price/name into
// lines -> insert header+lines -> commit. Any failure rolls the lot back.
func (s *Service) CreateOrder(ctx context.Context, userID string, items []ItemInput) (CreateOrderResult, error) {
	if len(items) == 0 {
		return CreateOrderResult{}, ErrEmptyOrder
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return CreateOrderResult{}, fmt.Errorf("product %s: %w", it.ProductID, ErrInvalidQuantity)
		}
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return CreateOrderResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	locked, err := s.Inventory.LockForOrder(ctx, tx, ids)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if len(locked) == 0 {
		return CreateOrderResult{}, ErrProductNotFound
	}
	// A duplicate product id in the request also trips this: the locked read
	// returns distinct rows only.
	if len(locked) != len(items) {
		return CreateOrderResult{}, ErrInvalidProduct
	}

	byID := make(map[string]LockedProduct, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}

	orderID := uuid.NewString()
	var (
		total int64
		lines = make([]OrderLine, 0, len(items))
	)
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return CreateOrderResult{}, ErrInvalidProduct
		}
		if p.Stock < it.Quantity {
			return CreateOrderResult{}, &InsufficientStockError{
				ProductID: p.ID, Requested: it.Quantity, Available: p.Stock,
			}
		}
		if err := s.Inventory.Decrement(ctx, tx, p.ID, it.Quantity); err != nil {
			return CreateOrderResult{}, err
		}
		lineTotal := p.PriceCents * int64(it.Quantity)
		lines = append(lines, OrderLine{
			ID:             uuid.NewString(),
			OrderID:        orderID,
			ProductID:      p.ID,
			ProductName:    p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       it.Quantity,
			LineTotalCents: lineTotal,
		})
		total += lineTotal
	}

	o := Order{
		ID:         orderID,
		UserID:     userID,
		TotalCents: total,
		Status:     StatusCreated,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Orders.Insert(ctx, tx, o, lines); err != nil {
		return CreateOrderResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CreateOrderResult{}, err
	}

	s.Log.Info("order created",
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
		zap.Int64("total_cents", total),
		zap.Int("lines", len(lines)))
	return CreateOrderResult{OrderID: orderID, TotalCents: total}, nil
}

// CancelOrder moves an order to CANCELLED if the lifecycle allows it and
// releases the stock reservation in the same transaction. Direct cancel and
// payment-failure compensation both give the units back; CANCELLED is
// terminal so the restore can only ever run once.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := s.Orders.StatusForUpdate(ctx, tx, orderID, userID)
	if err != nil {
		return err
	}
	if !CanTransition(cur, StatusCancelled) {
		return &InvalidTransitionError{From: cur, To: StatusCancelled}
	}
	if err := s.Orders.UpdateStatus(ctx, tx, orderID, StatusCancelled); err != nil {
		return err
	}
	if err := s.Inventory.Restore(ctx, tx, orderID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.Log.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
		zap.String("from_status", string(cur)))
	return nil
}

// Restock adds units back to a product outside any order flow, for returns
// and supplier deliveries.
func (s *Service) Restock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("product %s: %w", productID, ErrInvalidQuantity)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.Inventory.Increment(ctx, tx, productID, qty); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.Log.Info("product restocked",
		zap.String("product_id", productID),
		zap.Int("quantity", qty))
	return nil
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.Orders.ListByUser(ctx, userID)
}

// OrderStatus reads one order's persisted total and status, owner-scoped.
func (s *Service) OrderStatus(ctx context.Context, userID, orderID string) (int64, Status, error) {
	return s.Orders.TotalAndStatus(ctx, orderID, userID)
}
