package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// Insert writes the order header and all lines on the caller's tx, so the
// stock decrements taken in the same tx commit or roll back with them.
func (r *Repo) Insert(ctx context.Context, tx pgx.Tx, o Order, lines []OrderLine) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.UserID, o.TotalCents, o.Status, o.CreatedAt)
	if err != nil {
		return err
	}
	for _, l := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, l.OrderID, l.ProductID, l.ProductName, l.UnitPriceCents, l.Quantity, l.LineTotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListByUser returns the caller's orders newest-first with nested lines.
// Lines are ordered by their insert sequence (item_seq) so the grouping is
// deterministic; the join rows arrive flat and are folded per order id.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT
			o.id, o.total_amount, o.status, o.created_at,
			oi.id, oi.product_id, oi.product_name, oi.unit_price, oi.quantity, oi.line_total
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id, oi.item_seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	idx := map[string]int{}
	for rows.Next() {
		var (
			o Order
			l OrderLine
		)
		if err := rows.Scan(
			&o.ID, &o.TotalCents, &o.Status, &o.CreatedAt,
			&l.ID, &l.ProductID, &l.ProductName, &l.UnitPriceCents, &l.Quantity, &l.LineTotalCents,
		); err != nil {
			return nil, err
		}
		i, ok := idx[o.ID]
		if !ok {
			o.UserID = userID
			out = append(out, o)
			i = len(out) - 1
			idx[o.ID] = i
		}
		l.OrderID = out[i].ID
		out[i].Lines = append(out[i].Lines, l)
	}
	return out, rows.Err()
}

// StatusForUpdate reads the order's status scoped to its owner, locking the
// row so a concurrent transition cannot race the caller's own update.
func (r *Repo) StatusForUpdate(ctx context.Context, tx pgx.Tx, orderID, userID string) (Status, error) {
	var s Status
	err := tx.QueryRow(ctx, `
		SELECT status FROM orders
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, orderID, userID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	return s, err
}

// StatusLocked is the settlement-side read: no owner scoping, the order id
// came from provider metadata we minted ourselves.
func (r *Repo) StatusLocked(ctx context.Context, tx pgx.Tx, orderID string) (Status, error) {
	var s Status
	err := tx.QueryRow(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	return s, err
}

// TotalAndStatus backs the payment intent gate.
func (r *Repo) TotalAndStatus(ctx context.Context, orderID, userID string) (int64, Status, error) {
	var (
		total int64
		s     Status
	)
	err := r.DB.QueryRow(ctx, `
		SELECT total_amount, status FROM orders
		WHERE id = $1 AND user_id = $2`, orderID, userID).Scan(&total, &s)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", ErrOrderNotFound
	}
	return total, s, err
}

// UpdateStatus writes unconditionally; callers validate the transition via
// CanTransition after reading the current status under the same tx.
func (r *Repo) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, next Status) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, next, orderID)
	return err
}
