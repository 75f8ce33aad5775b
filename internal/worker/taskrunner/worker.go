// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package taskrunner

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	corelease "github.com/juju/tasklease/core/lease"
	"github.com/juju/tasklease/core/logger"
)

// releaseTimeout bounds the lease release attempted while the worker is
// shutting down.
const releaseTimeout = 5 * time.Second

// LeaseChecker reports whether this node holds a task's lease.
type LeaseChecker interface {
	CheckLease(ctx context.Context) (bool, error)
}

// LeaseReleaser gives up a held lease. A LeaseChecker that also
// implements LeaseReleaser has its lease released when the worker dies.
type LeaseReleaser interface {
	ReleaseLease(ctx context.Context) (bool, error)
}

// Task is the maintenance work guarded by the lease.
type Task func(ctx context.Context) error

// Config holds configuration required to run the task runner.
type Config struct {
	// Checker decides, on every tick, whether the task runs.
	Checker LeaseChecker

	// Task is run on each tick at which Checker reports ownership.
	Task Task

	// TaskType names the task in logs.
	TaskType corelease.TaskType

	// Interval is the time between lease checks.
	Interval time.Duration

	Clock  clock.Clock
	Logger logger.Logger
}

// Validate ensures that the configuration is
// correctly populated for worker operation.
func (config Config) Validate() error {
	if config.Checker == nil {
		return errors.NotValidf("nil Checker")
	}
	if config.Task == nil {
		return errors.NotValidf("nil Task")
	}
	if err := config.TaskType.Validate(); err != nil {
		return errors.Trace(err)
	}
	if config.Interval <= 0 {
		return errors.NotValidf("non-positive Interval %v", config.Interval)
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

type runnerWorker struct {
	catacomb catacomb.Catacomb
	config   Config

	// owned records the outcome of the most recent check. It is only
	// touched from the loop goroutine.
	owned bool

	reports chan chan map[string]any
	runs    int
	fails   int
	lastRun time.Time
}

// NewWorker returns a worker that checks the lease immediately and then
// every Interval, running the task whenever this node is the owner.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	w := &runnerWorker{
		config:  config,
		reports: make(chan chan map[string]any),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *runnerWorker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *runnerWorker) Wait() error {
	return w.catacomb.Wait()
}

// Report returns a snapshot of the runner's state, for introspection.
func (w *runnerWorker) Report() map[string]any {
	ch := make(chan map[string]any, 1)
	select {
	case w.reports <- ch:
	case <-w.catacomb.Dying():
		return map[string]any{"task-type": w.config.TaskType.String(), "state": "stopped"}
	}
	select {
	case report := <-ch:
		return report
	case <-w.catacomb.Dying():
		return map[string]any{"task-type": w.config.TaskType.String(), "state": "stopped"}
	}
}

func (w *runnerWorker) loop() error {
	defer w.release()

	ctx := w.catacomb.Context(context.Background())

	w.tick(ctx)

	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case ch := <-w.reports:
			ch <- w.report()
		case <-timer.Chan():
			w.tick(ctx)
			timer.Reset(w.config.Interval)
		}
	}
}

// tick runs one lease check and, if this node is the owner, the task.
// Neither a check error nor a task failure stops the worker.
func (w *runnerWorker) tick(ctx context.Context) {
	taskType := w.config.TaskType

	owned, err := w.config.Checker.CheckLease(ctx)
	if err != nil {
		// Ownership is unknown, so the task must not run.
		if ctx.Err() == nil {
			w.config.Logger.Errorf("cannot check %s lease: %v", taskType, err)
		}
		w.owned = false
		return
	}
	w.owned = owned
	if !owned {
		w.config.Logger.Debugf("not %s lease owner, skipping task", taskType)
		return
	}

	start := w.config.Clock.Now()
	err = w.config.Task(ctx)
	w.runs++
	w.lastRun = start
	if err != nil {
		w.fails++
		if ctx.Err() == nil {
			w.config.Logger.Errorf("running %s task: %v", taskType, err)
		}
		return
	}
	w.config.Logger.Debugf("ran %s task in %v", taskType, w.config.Clock.Now().Sub(start))
}

func (w *runnerWorker) release() {
	releaser, ok := w.config.Checker.(LeaseReleaser)
	if !ok || !w.owned {
		return
	}

	// The catacomb context is already cancelled by the time we get here.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if _, err := releaser.ReleaseLease(ctx); err != nil {
		w.config.Logger.Warningf("cannot release %s lease: %v", w.config.TaskType, err)
	}
}

func (w *runnerWorker) report() map[string]any {
	report := map[string]any{
		"task-type": w.config.TaskType.String(),
		"owner":     w.owned,
		"runs":      w.runs,
		"failures":  w.fails,
	}
	if !w.lastRun.IsZero() {
		report["last-run"] = w.lastRun.Format(time.RFC3339)
	}
	return report
}
