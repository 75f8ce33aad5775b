// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package maintenance provides the periodic tasks guarded by task
// leases. Each run is recorded in the store, so that operators can see
// which node last did the work and when.
package maintenance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/tasklease/core/kv"
	corelease "github.com/juju/tasklease/core/lease"
	"github.com/juju/tasklease/core/logger"
)

// Run describes the most recent completed run of a task.
type Run struct {
	Node  uuid.UUID `json:"node"`
	At    time.Time `json:"at"`
	Count int64     `json:"count"`
}

// RunKey returns the key under which a task type's last run is kept.
func RunKey(taskType corelease.TaskType) string {
	return "task/" + taskType.String() + "/last-run"
}

// Config holds the dependencies of a maintenance task.
type Config struct {
	TaskType corelease.TaskType
	NodeID   uuid.UUID
	Store    kv.Store
	Clock    clock.Clock
	Logger   logger.Logger
}

// Validate returns an error if the config cannot drive a task.
func (config Config) Validate() error {
	if err := config.TaskType.Validate(); err != nil {
		return errors.Trace(err)
	}
	if config.NodeID == uuid.Nil {
		return errors.NotValidf("nil NodeID")
	}
	if config.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Task runs one maintenance pass.
type Task struct {
	config Config
}

// NewTask returns the task for config.TaskType.
func NewTask(config Config) (*Task, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Task{config: config}, nil
}

// Run performs the task and records the run. It must only be called
// while the node holds the task's lease.
func (t *Task) Run(ctx context.Context) error {
	txn, err := t.config.Store.Begin(ctx, kv.ReadWrite)
	if err != nil {
		return errors.Annotatef(err, "starting %s run", t.config.TaskType)
	}
	defer func() { _ = txn.Abort() }()

	key := RunKey(t.config.TaskType)
	previous, _, err := readRun(ctx, txn, key)
	if err != nil {
		return errors.Trace(err)
	}

	run := Run{
		Node:  t.config.NodeID,
		At:    t.config.Clock.Now().UTC(),
		Count: previous.Count + 1,
	}
	switch t.config.TaskType {
	case corelease.ChangeFeedCleanup:
		t.config.Logger.Infof("pruning change feed (run %d)", run.Count)
	case corelease.IndexCompaction:
		t.config.Logger.Infof("compacting indexes (run %d)", run.Count)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return errors.Trace(err)
	}
	if err := txn.Set(ctx, key, data); err != nil {
		return errors.Annotatef(err, "recording %s run", t.config.TaskType)
	}
	if err := txn.Commit(ctx); err != nil {
		return errors.Annotatef(err, "recording %s run", t.config.TaskType)
	}
	return nil
}

// LastRun returns the most recent recorded run of the task type.
func LastRun(ctx context.Context, store kv.Store, taskType corelease.TaskType) (Run, bool, error) {
	txn, err := store.Begin(ctx, kv.ReadOnly)
	if err != nil {
		return Run{}, false, errors.Trace(err)
	}
	defer func() { _ = txn.Abort() }()

	return readRun(ctx, txn, RunKey(taskType))
}

func readRun(ctx context.Context, txn kv.Transaction, key string) (Run, bool, error) {
	data, found, err := txn.Get(ctx, key)
	if err != nil {
		return Run{}, false, errors.Annotatef(err, "reading %q", key)
	} else if !found {
		return Run{}, false, nil
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, false, errors.Annotatef(err, "decoding %q", key)
	}
	return run, true, nil
}
