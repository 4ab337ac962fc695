package redisx

import "time"

const (
	// Order status cache: order_status:{order_id} -> status + owner id blob.
	// Written by the API on create/cancel and by the status worker as
	// settlement events land. The DB row stays the source of truth.
	KeyOrderStatus = "order_status:%s"

	// Dedup for consumed events: dedup:{service}:{event_id}. Fast-path only;
	// the payments unique index is what actually guarantees at-most-once.
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
