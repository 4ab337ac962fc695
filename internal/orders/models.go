package orders

import "time"

// Amounts are integer cents everywhere. Floating point never touches money.

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	TotalCents int64       `json:"total_amount"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	Lines      []OrderLine `json:"items"`
}

// OrderLine snapshots product name and unit price at order time, so later
// product edits never rewrite history.
type OrderLine struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"unit_price"`
	Quantity       int    `json:"quantity"`
	LineTotalCents int64  `json:"line_total"`
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderResult struct {
	OrderID    string `json:"order_id"`
	TotalCents int64  `json:"total_amount"`
}

// LockedProduct is what LockForOrder returns: just enough to price a line and
// check stock while the row lock is held.
type LockedProduct struct {
	ID         string
	Name       string
	PriceCents int64
	Stock      int
}
