// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"fmt"
	"sync"
)

// CheckLog is an interface that can be used to log messages to a
// *testing.T or *check.C.
type CheckLog interface {
	Logf(string, ...any)
}

// CheckLogger is a logger.Logger that logs to a *testing.T or *check.C.
type CheckLogger struct {
	Log CheckLog
}

// WrapCheckLog returns a CheckLogger that logs to the given CheckLog.
func WrapCheckLog(log CheckLog) CheckLogger {
	return CheckLogger{Log: log}
}

func (c CheckLogger) Errorf(msg string, args ...any) {
	c.Log.Logf(fmt.Sprintf("ERROR: %s", msg), args...)
}
func (c CheckLogger) Warningf(msg string, args ...any) {
	c.Log.Logf(fmt.Sprintf("WARNING: %s", msg), args...)
}
func (c CheckLogger) Infof(msg string, args ...any) {
	c.Log.Logf(fmt.Sprintf("INFO: %s", msg), args...)
}
func (c CheckLogger) Debugf(msg string, args ...any) {
	c.Log.Logf(fmt.Sprintf("DEBUG: %s", msg), args...)
}
func (c CheckLogger) Tracef(msg string, args ...any) {
	c.Log.Logf(fmt.Sprintf("TRACE: %s", msg), args...)
}

func (c CheckLogger) IsTraceEnabled() bool { return true }

// RecordingLogger collects formatted messages by level, for tests that
// assert on what was logged.
type RecordingLogger struct {
	CheckLogger

	mu       sync.Mutex
	messages []string
}

// NewRecordingLogger returns a RecordingLogger that also logs to log.
func NewRecordingLogger(log CheckLog) *RecordingLogger {
	return &RecordingLogger{CheckLogger: WrapCheckLog(log)}
}

// Messages returns a copy of everything logged so far, each prefixed
// with its level.
func (r *RecordingLogger) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func (r *RecordingLogger) record(level, msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, level+": "+fmt.Sprintf(msg, args...))
}

func (r *RecordingLogger) Errorf(msg string, args ...any) {
	r.record("ERROR", msg, args...)
	r.CheckLogger.Errorf(msg, args...)
}
func (r *RecordingLogger) Warningf(msg string, args ...any) {
	r.record("WARNING", msg, args...)
	r.CheckLogger.Warningf(msg, args...)
}
func (r *RecordingLogger) Infof(msg string, args ...any) {
	r.record("INFO", msg, args...)
	r.CheckLogger.Infof(msg, args...)
}
func (r *RecordingLogger) Debugf(msg string, args ...any) {
	r.record("DEBUG", msg, args...)
	r.CheckLogger.Debugf(msg, args...)
}
func (r *RecordingLogger) Tracef(msg string, args ...any) {
	r.record("TRACE", msg, args...)
	r.CheckLogger.Tracef(msg, args...)
}
