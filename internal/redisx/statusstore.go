package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// OrderStatus is the cached status blob. UserID records the order's owner so
// the read path can serve a hit without an ownership round trip to postgres;
// entries written without it only satisfy the DB fallback.
type OrderStatus struct {
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
}

// StatusStore is the one place the order-status cache and the consumer dedup
// keys are read and written. The API and the status worker share it.
type StatusStore struct {
	R       *redis.Client
	Service string
}

// Get returns the cached entry for an order. A missing key, an entry that
// predates the current blob shape, or garbage all read as a miss.
func (s *StatusStore) Get(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	raw, err := s.R.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return OrderStatus{}, false, nil
	}
	if err != nil {
		return OrderStatus{}, false, err
	}
	var out OrderStatus
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out.Status == "" {
		return OrderStatus{}, false, nil
	}
	return out, true, nil
}

func (s *StatusStore) Set(ctx context.Context, orderID string, v OrderStatus) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

func (s *StatusStore) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, s.R, fmt.Sprintf(KeyDedup, s.Service, eventID))
}

func (s *StatusStore) Mark(ctx context.Context, eventID string) error {
	return s.R.Set(ctx, fmt.Sprintf(KeyDedup, s.Service, eventID), "1", TTLDedup).Err()
}
