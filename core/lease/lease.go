// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease

import (
	"time"

	"github.com/google/uuid"
)

// Lease records which node currently owns a task type, and until when.
type Lease struct {
	// TaskType is the maintenance task the lease guards.
	TaskType TaskType

	// Owner is the id of the node holding the lease.
	Owner uuid.UUID

	// Expiration is the instant at which the lease stops being valid.
	Expiration time.Time
}

// ValidAt reports whether the lease is still in force at now. A lease
// whose expiration is exactly now is no longer valid.
func (l Lease) ValidAt(now time.Time) bool {
	return l.Expiration.After(now)
}

// Remaining returns how long the lease has left to run at now. The
// result is negative once the lease has expired.
func (l Lease) Remaining(now time.Time) time.Duration {
	return l.Expiration.Sub(now)
}

// HeldBy reports whether node owns the lease.
func (l Lease) HeldBy(node uuid.UUID) bool {
	return l.Owner == node
}
