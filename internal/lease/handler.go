// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/juju/tasklease/core/kv"
	corelease "github.com/juju/tasklease/core/lease"
	"github.com/juju/tasklease/core/logger"
)

const tracerName = "github.com/juju/tasklease/internal/lease"

// HandlerConfig holds the configuration and dependencies of a Handler.
type HandlerConfig struct {
	// NodeID identifies this node as a lease owner.
	NodeID uuid.UUID

	// TaskType is the task whose lease the handler manages.
	TaskType corelease.TaskType

	// Duration is how long an acquired or renewed lease remains valid.
	Duration time.Duration

	// Store opens the transactions in which every decision is made.
	Store kv.Store

	Clock  clock.Clock
	Logger logger.Logger

	// Metrics, if set, records the outcome of each check.
	Metrics *Collector

	// Tracer, if set, is used in place of the global otel tracer.
	Tracer trace.Tracer
}

// Validate returns an error if the config cannot drive a Handler.
func (config HandlerConfig) Validate() error {
	if config.NodeID == uuid.Nil {
		return errors.NotValidf("nil NodeID")
	}
	if err := config.TaskType.Validate(); err != nil {
		return errors.Trace(err)
	}
	if config.Duration <= 0 {
		return errors.NotValidf("non-positive Duration %v", config.Duration)
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

// Handler decides, for one node and one task type, whether the node
// holds the task's lease. It keeps no state between calls: every
// decision re-reads the lease inside a fresh transaction, and races
// between nodes are settled by the store's optimistic commit.
type Handler struct {
	config HandlerConfig
	tracer trace.Tracer
	key    string
}

// NewHandler returns a Handler configured as supplied.
func NewHandler(config HandlerConfig) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Handler{
		config: config,
		tracer: tracer,
		key:    corelease.Key(config.TaskType),
	}, nil
}

// NodeID returns the id this handler claims leases as.
func (h *Handler) NodeID() uuid.UUID {
	return h.config.NodeID
}

// TaskType returns the task type whose lease this handler manages.
func (h *Handler) TaskType() corelease.TaskType {
	return h.config.TaskType
}

// CheckValidLease returns the lease for the handler's task type if one
// is in force at now. An expired record is reported as absent, and left
// in place for the next acquirer to overwrite. Nothing is written.
func (h *Handler) CheckValidLease(ctx context.Context, now time.Time) (_ corelease.Lease, _ bool, err error) {
	ctx, span := h.tracer.Start(ctx, "CheckValidLease", trace.WithAttributes(
		attribute.String("task.type", h.config.TaskType.String()),
	))
	defer func() { endSpan(span, err) }()

	txn, err := h.config.Store.Begin(ctx, kv.ReadOnly)
	if err != nil {
		return corelease.Lease{}, false, errors.Annotatef(err, "reading %s lease", h.config.TaskType)
	}
	defer func() { _ = txn.Abort() }()

	return h.validLease(ctx, txn, now)
}

// CheckLease reports whether this node holds the lease after the call.
// It acquires a missing or expired lease, renews its own lease once less
// than half the duration remains, and otherwise leaves the record alone.
//
// Losing a race for the lease is not an error: it returns false. Errors
// are returned only when the store could not be read or written, in
// which case ownership is unknown.
func (h *Handler) CheckLease(ctx context.Context) (owned bool, err error) {
	ctx, span := h.tracer.Start(ctx, "CheckLease", trace.WithAttributes(
		attribute.String("task.type", h.config.TaskType.String()),
		attribute.String("node.id", h.config.NodeID.String()),
	))
	defer func() {
		if err != nil {
			h.config.Metrics.observe(h.config.TaskType, outcomeError)
		} else {
			span.SetAttributes(attribute.Bool("lease.owned", owned))
			h.config.Metrics.setOwner(h.config.TaskType, owned)
		}
		endSpan(span, err)
	}()

	// The whole decision is made against a single reading of the clock.
	now := h.config.Clock.Now()

	txn, err := h.config.Store.Begin(ctx, kv.ReadWrite)
	if err != nil {
		return false, errors.Annotatef(err, "checking %s lease", h.config.TaskType)
	}
	defer func() { _ = txn.Abort() }()

	current, valid, err := h.validLease(ctx, txn, now)
	if err != nil {
		return false, errors.Trace(err)
	}

	switch {
	case !valid:
		return h.acquire(ctx, txn, now)
	case current.HeldBy(h.config.NodeID):
		return h.renew(ctx, txn, current, now)
	default:
		h.config.Logger.Tracef("%s lease held by %s until %s",
			h.config.TaskType, current.Owner, current.Expiration.Format(time.RFC3339Nano))
		h.config.Metrics.observe(h.config.TaskType, outcomeNotOwner)
		return false, nil
	}
}

// ReleaseLease gives up the lease if this node holds it, by rewriting it
// to expire now. Other nodes can acquire it straight away instead of
// waiting out the remaining duration. It returns true if the lease was
// released.
func (h *Handler) ReleaseLease(ctx context.Context) (released bool, err error) {
	ctx, span := h.tracer.Start(ctx, "ReleaseLease", trace.WithAttributes(
		attribute.String("task.type", h.config.TaskType.String()),
		attribute.String("node.id", h.config.NodeID.String()),
	))
	defer func() { endSpan(span, err) }()

	now := h.config.Clock.Now()

	txn, err := h.config.Store.Begin(ctx, kv.ReadWrite)
	if err != nil {
		return false, errors.Annotatef(err, "releasing %s lease", h.config.TaskType)
	}
	defer func() { _ = txn.Abort() }()

	current, valid, err := h.validLease(ctx, txn, now)
	if err != nil {
		return false, errors.Trace(err)
	}
	if !valid || !current.HeldBy(h.config.NodeID) {
		return false, nil
	}

	err = h.commit(ctx, txn, corelease.Lease{
		TaskType:   h.config.TaskType,
		Owner:      h.config.NodeID,
		Expiration: now,
	})
	if kv.IsConflict(err) {
		h.config.Logger.Debugf("%s lease changed while releasing it", h.config.TaskType)
		h.config.Metrics.observe(h.config.TaskType, outcomeConflict)
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}

	h.config.Logger.Infof("released %s lease", h.config.TaskType)
	h.config.Metrics.observe(h.config.TaskType, outcomeReleased)
	h.config.Metrics.setOwner(h.config.TaskType, false)
	return true, nil
}

func (h *Handler) acquire(ctx context.Context, txn kv.Transaction, now time.Time) (bool, error) {
	claimed := corelease.Lease{
		TaskType:   h.config.TaskType,
		Owner:      h.config.NodeID,
		Expiration: now.Add(h.config.Duration),
	}
	err := h.commit(ctx, txn, claimed)
	if kv.IsConflict(err) {
		// Another node got there first. Try again next time around.
		h.config.Logger.Debugf("lost race to acquire %s lease", h.config.TaskType)
		h.config.Metrics.observe(h.config.TaskType, outcomeConflict)
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}

	h.config.Logger.Infof("acquired %s lease until %s",
		h.config.TaskType, claimed.Expiration.Format(time.RFC3339Nano))
	h.config.Metrics.observe(h.config.TaskType, outcomeAcquired)
	return true, nil
}

func (h *Handler) renew(ctx context.Context, txn kv.Transaction, current corelease.Lease, now time.Time) (bool, error) {
	if current.Remaining(now) >= h.config.Duration/2 {
		h.config.Metrics.observe(h.config.TaskType, outcomeHeld)
		return true, nil
	}

	renewed := corelease.Lease{
		TaskType:   h.config.TaskType,
		Owner:      h.config.NodeID,
		Expiration: now.Add(h.config.Duration),
	}
	// The read above proved we own a lease that is still in force, so a
	// failed renewal does not cost us ownership for this cycle; the next
	// check will try again with the time that remains.
	if err := h.commit(ctx, txn, renewed); kv.IsConflict(err) {
		h.config.Logger.Warningf("renewing %s lease conflicted with another writer", h.config.TaskType)
		h.config.Metrics.observe(h.config.TaskType, outcomeConflict)
		return true, nil
	} else if err != nil {
		h.config.Logger.Warningf("renewing %s lease, %v remaining: %v",
			h.config.TaskType, current.Remaining(now), err)
		h.config.Metrics.observe(h.config.TaskType, outcomeError)
		return true, nil
	}

	h.config.Logger.Debugf("renewed %s lease until %s",
		h.config.TaskType, renewed.Expiration.Format(time.RFC3339Nano))
	h.config.Metrics.observe(h.config.TaskType, outcomeRenewed)
	return true, nil
}

func (h *Handler) validLease(ctx context.Context, txn kv.Transaction, now time.Time) (corelease.Lease, bool, error) {
	data, found, err := txn.Get(ctx, h.key)
	if err != nil {
		return corelease.Lease{}, false, errors.Annotatef(err, "reading %s lease", h.config.TaskType)
	}
	if !found {
		return corelease.Lease{}, false, nil
	}

	current, err := corelease.Decode(h.config.TaskType, data)
	if err != nil {
		return corelease.Lease{}, false, errors.Annotatef(err, "decoding %s lease", h.config.TaskType)
	}
	if !current.ValidAt(now) {
		return corelease.Lease{}, false, nil
	}
	return current, true, nil
}

func (h *Handler) commit(ctx context.Context, txn kv.Transaction, l corelease.Lease) error {
	data, err := corelease.Encode(l)
	if err != nil {
		return errors.Annotatef(err, "encoding %s lease", h.config.TaskType)
	}
	if err := txn.Set(ctx, h.key, data); err != nil {
		return errors.Annotatef(err, "writing %s lease", h.config.TaskType)
	}
	if err := txn.Commit(ctx); err != nil {
		return errors.Annotatef(err, "committing %s lease", h.config.TaskType)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
