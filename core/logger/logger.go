// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package logger

import (
	"github.com/juju/loggo/v2"
)

// Logger represents the logging methods used throughout the lease
// subsystem. A loggo.Logger satisfies it.
type Logger interface {
	Errorf(string, ...any)
	Warningf(string, ...any)
	Infof(string, ...any)
	Debugf(string, ...any)
	Tracef(string, ...any)

	IsTraceEnabled() bool
}

// GetLogger returns the named loggo logger. Names are rooted at
// "tasklease", so GetLogger("lease") logs as "tasklease.lease".
func GetLogger(name string) Logger {
	return loggo.GetLogger("tasklease." + name)
}
