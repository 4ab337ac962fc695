package orders

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InventoryRepo owns product stock. Every mutator takes the caller's tx: stock
// moves are only meaningful inside the transaction that also writes the order
// or payment rows, never on a bare pool.
type InventoryRepo struct{ DB *pgxpool.Pool }

// LockForOrder takes row locks on the requested products in sorted id order,
// so two creations touching the same products never deadlock on each other.
// Missing ids simply do not come back; the caller compares counts.
func (r *InventoryRepo) LockForOrder(ctx context.Context, tx pgx.Tx, productIDs []string) ([]LockedProduct, error) {
	ids := make([]string, len(productIDs))
	copy(ids, productIDs)
	sort.Strings(ids)

	rows, err := tx.Query(ctx, `
		SELECT id, name, price, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LockedProduct
	for rows.Next() {
		var p LockedProduct
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Decrement reserves qty units. The predicate re-checks stock so a committed
// transaction can never leave it negative even if the caller's earlier read
// was stale.
func (r *InventoryRepo) Decrement(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &InsufficientStockError{ProductID: productID, Requested: qty}
	}
	return nil
}

// Increment puts qty units back on a single product, the restock path.
func (r *InventoryRepo) Increment(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrProductNotFound
	}
	return nil
}

// Restore compensates an order's whole reservation in one statement, used
// when a payment fails or the user cancels while stock is still held.
func (r *InventoryRepo) Restore(ctx context.Context, tx pgx.Tx, orderID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE products
		SET stock = stock + oi.quantity, updated_at = now()
		FROM order_items oi
		WHERE oi.order_id = $1
		  AND products.id = oi.product_id`, orderID)
	return err
}

func (r *InventoryRepo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, price, stock, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
