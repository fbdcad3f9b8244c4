package redisx

import (
	"fmt"
	"time"
)

const (
	// Payment session creation lock: lock:payment_session:{order_id} -> owner token
	KeySessionLock = "lock:payment_session:%s"

	// Dedup of delivered events: dedup:{scope}:{id} (id = gateway event id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLSessionLock = 15 * time.Second
	TTLDedup       = 48 * time.Hour
)

func SessionLockKey(orderID string) string { return fmt.Sprintf(KeySessionLock, orderID) }

func DedupKey(scope, id string) string { return fmt.Sprintf(KeyDedup, scope, id) }
