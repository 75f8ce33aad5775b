// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package app

import (
	"github.com/juju/errors"

	"github.com/juju/tasklease/core/logger"
)

// Config describes a dqlite node.
type Config struct {
	// Dir holds the node's raft log and snapshots. It must be stable
	// across restarts.
	Dir string

	// Address is the host:port other nodes reach this node on.
	Address string

	// Cluster lists existing nodes to join through. It is empty when
	// bootstrapping the first node.
	Cluster []string

	Logger logger.Logger
}

// Validate returns an error if the config cannot start a node.
func (config Config) Validate() error {
	if config.Dir == "" {
		return errors.NotValidf("empty Dir")
	}
	if config.Address == "" {
		return errors.NotValidf("empty Address")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}
