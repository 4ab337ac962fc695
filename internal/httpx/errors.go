package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-order-settlement.git/internal/orders"
	"github.com/ariefcatur/go-order-settlement.git/internal/payments"
)

// statusFor maps domain error kinds onto outward signals. Anything unmapped
// collapses to a generic 500 so internals never leak.
func statusFor(err error) (int, string) {
	var (
		stockErr      *orders.InsufficientStockError
		transitionErr *orders.InvalidTransitionError
	)
	switch {
	case errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrInvalidProduct):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &stockErr),
		errors.As(err, &transitionErr),
		errors.Is(err, payments.ErrOrderNotPayable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, payments.ErrBadSignature):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeErr(w http.ResponseWriter, err error) {
	code, msg := statusFor(err)
	writeJSON(w, code, map[string]string{"error": msg})
}
