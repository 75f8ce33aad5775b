// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease

import (
	"github.com/juju/errors"
)

// TaskType identifies a periodic maintenance duty guarded by a lease.
// Each task type has exactly one lease record in the store.
type TaskType string

const (
	// ChangeFeedCleanup prunes change-feed entries that have fallen
	// outside their retention window.
	ChangeFeedCleanup TaskType = "changefeed-cleanup"

	// IndexCompaction folds pending index updates into the index.
	IndexCompaction TaskType = "index-compaction"
)

// AllTaskTypes returns every known task type.
func AllTaskTypes() []TaskType {
	return []TaskType{
		ChangeFeedCleanup,
		IndexCompaction,
	}
}

// String implements fmt.Stringer.
func (t TaskType) String() string {
	return string(t)
}

// Validate returns an error if the task type is not one of the known
// task types.
func (t TaskType) Validate() error {
	for _, known := range AllTaskTypes() {
		if t == known {
			return nil
		}
	}
	return errors.NotValidf("task type %q", string(t))
}

// ParseTaskType returns the task type named by s.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(s)
	if err := t.Validate(); err != nil {
		return "", errors.Trace(err)
	}
	return t, nil
}
