package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgForeignKeyViolation = "23503"

type Repo struct{ DB *pgxpool.Pool }

// ClaimSettlement writes the payment row that anchors idempotency, inside the
// caller's tx so it commits or rolls back with the settlement effects. The
// unique index on (provider, provider_payment_id) does the serializing:
// a fresh event inserts, an event whose intent the issuer already noted as
// PENDING upgrades that row, and a redelivery of a settled event matches
// nothing and comes back as ErrDuplicateEvent. The order_id foreign key turns
// a bogus order reference into ErrUnknownOrder. Both are decisions, not
// failures.
func (r *Repo) ClaimSettlement(ctx context.Context, tx pgx.Tx, p Payment) error {
	ct, err := tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, user_id, provider, provider_payment_id,
		                      amount, currency, status, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (provider, provider_payment_id) DO UPDATE
		SET status = EXCLUDED.status,
		    failure_reason = EXCLUDED.failure_reason,
		    amount = EXCLUDED.amount
		WHERE payments.status = 'PENDING'`,
		p.ID, p.OrderID, nullable(p.UserID), p.Provider, p.ProviderPaymentID,
		p.AmountCents, p.Currency, p.Status, nullable(p.FailureReason))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrUnknownOrder
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

// RecordPending notes the intent we just created at the provider. Bookkeeping
// only: the settlement claim upgrades or bypasses this row, so losing it
// costs nothing but audit trail.
func (r *Repo) RecordPending(ctx context.Context, p Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments (id, order_id, user_id, provider, provider_payment_id,
		                      amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (provider, provider_payment_id) DO NOTHING`,
		p.ID, p.OrderID, nullable(p.UserID), p.Provider, p.ProviderPaymentID,
		p.AmountCents, p.Currency, StatusPending)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
