package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement.git/internal/payments"
)

type CreateIntentReq struct {
	OrderID string `json:"order_id"`
}

type PaymentsHandler struct {
	Intents *payments.IntentService
	Settler *payments.Settler
	Decoder payments.EventDecoder
	Auth    AuthFunc
	Log     *zap.Logger
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments/create-intent", h.createIntent)
	r.Post("/payments/webhook", h.webhook)
}

func (h *PaymentsHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Auth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req CreateIntentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	secret, err := h.Intents.CreateIntent(ctx, userID, req.OrderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"client_secret": secret})
}

// webhook is the provider-facing entry point. A bad signature is the only
// rejection that must not acknowledge; once decoding succeeds the settler
// decides, and only a transaction failure (safe to redeliver) answers 5xx.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	ev, ok, err := h.Decoder.Decode(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			writeErr(w, err)
			return
		}
		h.Log.Warn("webhook decode", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if !ok {
		// Verified but irrelevant event type.
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Settler.HandleEvent(ctx, ev); err != nil {
		h.Log.Error("settle payment event",
			zap.String("order_id", ev.OrderID),
			zap.String("provider_payment_id", ev.ProviderPaymentID),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook processing failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
