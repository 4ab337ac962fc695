package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-settlement.git/internal/kafka"
	"github.com/ariefcatur/go-order-settlement.git/internal/orders"
	"github.com/ariefcatur/go-order-settlement.git/internal/redisx"
)

type CreateOrderReq struct {
	Items []orders.ItemInput `json:"items"`
}

type RestockReq struct {
	Quantity int `json:"quantity"`
}

// StatusCache is satisfied by *redisx.StatusStore.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
	Set(ctx context.Context, orderID string, v redisx.OrderStatus) error
}

type OrdersHandler struct {
	Service      *orders.Service
	Inventory    *orders.InventoryRepo
	Status       StatusCache
	ProducerNew  *kafkax.Producer // order.created
	ProducerCanc *kafkax.Producer // order.cancelled
	Auth         AuthFunc
	ServiceName  string
	Log          *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrderStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/products", h.listProducts)
	r.Post("/products/{id}/restock", h.restockProduct)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Auth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.CreateOrder(ctx, userID, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, res.OrderID, userID, orders.StatusCreated)
	h.publishCreated(r, userID, res, req.Items)

	writeJSON(w, http.StatusCreated, res)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Auth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Service.ListOrders(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Auth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// Cache first; the status worker keeps it in step with settlement events.
	// A hit is served only to the owner stamped into the entry, anything else
	// falls through to the owner-scoped DB read.
	if cs, ok, err := h.Status.Get(ctx, orderID); err == nil && ok && cs.UserID == userID {
		writeJSON(w, http.StatusOK, map[string]string{"status": cs.Status})
		return
	}

	_, status, err := h.Service.OrderStatus(ctx, userID, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, userID, status)
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Auth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.CancelOrder(ctx, userID, orderID); err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, orderID, userID, orders.StatusCancelled)
	h.publishCancelled(r, orderID)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Order cancelled"})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Inventory.List(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) restockProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Auth(r); err != nil {
		writeErr(w, err)
		return
	}
	productID := chi.URLParam(r, "id")
	var req RestockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.Restock(ctx, productID, req.Quantity); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Stock updated"})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID, userID string, s orders.Status) {
	entry := redisx.OrderStatus{Status: string(s), UserID: userID}
	if err := h.Status.Set(ctx, orderID, entry); err != nil {
		h.Log.Warn("status cache set", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (h *OrdersHandler) publishCreated(r *http.Request, userID string, res orders.CreateOrderResult, items []orders.ItemInput) {
	qtys := make([]orders.ItemQty, 0, len(items))
	for _, it := range items {
		qtys = append(qtys, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.ServiceName,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: res.OrderID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:    res.OrderID,
			UserID:     userID,
			Items:      qtys,
			TotalCents: res.TotalCents,
		}),
	}
	h.ProducerNew.Publish(orders.PartitionKey(res.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) publishCancelled(r *http.Request, orderID string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.ServiceName,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderCancelledPayload{
			OrderID: orderID,
			Reason:  "USER_CANCELLED",
		}),
	}
	h.ProducerCanc.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
