// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/ansiterm"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/juju/tasklease/core/logger"
	"github.com/juju/tasklease/internal/cmd"
	"github.com/juju/tasklease/internal/lease"
	"github.com/juju/tasklease/internal/maintenance"
)

const statusDoc = `
Status shows, for every configured task type, which node currently holds
the task's lease and when the task last ran. It only reads the store.
`

type statusCommand struct {
	cmd.CommandBase

	configFile cmd.FileVar
	out        cmd.Output
	clock      clock.Clock
}

func newStatusCommand() *statusCommand {
	return &statusCommand{clock: clock.WallClock}
}

// TaskStatus is the status of one task type.
type TaskStatus struct {
	TaskType  string     `yaml:"task-type" json:"task-type"`
	Owner     string     `yaml:"owner,omitempty" json:"owner,omitempty"`
	Self      bool       `yaml:"self,omitempty" json:"self,omitempty"`
	Expires   *time.Time `yaml:"expires,omitempty" json:"expires,omitempty"`
	LastRun   *time.Time `yaml:"last-run,omitempty" json:"last-run,omitempty"`
	LastRunBy string     `yaml:"last-run-by,omitempty" json:"last-run-by,omitempty"`
	Runs      int64      `yaml:"runs" json:"runs"`
}

func (c *statusCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "status",
		Purpose: "Show task lease owners.",
		Doc:     statusDoc,
	}
}

func (c *statusCommand) SetFlags(f *gnuflag.FlagSet) {
	f.Var(&c.configFile, "config", "path to the node configuration file")
	c.out.AddFlags(f, "tabular", map[string]cmd.Formatter{
		"yaml":    cmd.FormatYaml,
		"json":    cmd.FormatJson,
		"tabular": c.formatTabular,
	})
}

func (c *statusCommand) Run(ctx *cmd.Context) error {
	cfg, err := loadConfig(ctx, c.configFile)
	if err != nil {
		return errors.Trace(err)
	}

	store, closeStore, err := openStore(ctx, cfg, c.clock, logger.GetLogger("kv"))
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = closeStore() }()

	now := c.clock.Now()
	var status []TaskStatus
	for _, taskType := range cfg.Tasks() {
		handler, err := lease.NewHandler(lease.HandlerConfig{
			NodeID:   cfg.Node(),
			TaskType: taskType,
			Duration: cfg.LeaseDuration,
			Store:    store,
			Clock:    c.clock,
			Logger:   logger.GetLogger("lease"),
		})
		if err != nil {
			return errors.Trace(err)
		}

		entry := TaskStatus{TaskType: taskType.String()}
		current, valid, err := handler.CheckValidLease(ctx, now)
		if err != nil {
			return errors.Trace(err)
		}
		if valid {
			expires := current.Expiration.UTC()
			entry.Owner = current.Owner.String()
			entry.Self = current.HeldBy(cfg.Node())
			entry.Expires = &expires
		}

		run, found, err := maintenance.LastRun(ctx, store, taskType)
		if err != nil {
			return errors.Trace(err)
		}
		if found {
			at := run.At.UTC()
			entry.LastRun = &at
			entry.LastRunBy = run.Node.String()
			entry.Runs = run.Count
		}
		status = append(status, entry)
	}
	return c.out.Write(ctx, status)
}

// formatTabular shows times relative to the status command's clock.
func (c *statusCommand) formatTabular(w io.Writer, value any) error {
	status, ok := value.([]TaskStatus)
	if !ok {
		return errors.Errorf("expected []TaskStatus, got %T", value)
	}

	now := c.clock.Now()
	tw := ansiterm.NewTabWriter(w, 0, 1, 2, ' ', 0)
	fmt.Fprintln(tw, "Task\tOwner\tExpires\tLast run\tRuns")
	for _, s := range status {
		fmt.Fprintf(tw, "%s\t", s.TaskType)
		switch {
		case s.Owner == "":
			ansiterm.Foreground(ansiterm.Yellow).Fprintf(tw, "%s", "none")
		case s.Self:
			ansiterm.Foreground(ansiterm.Green).Fprintf(tw, "%s (this node)", s.Owner)
		default:
			fmt.Fprint(tw, s.Owner)
		}
		fmt.Fprintf(tw, "\t%s\t%s\t%d\n", relTime(s.Expires, now), relTime(s.LastRun, now), s.Runs)
	}
	return errors.Trace(tw.Flush())
}

func relTime(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}
