// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/juju/lumberjack/v2"
	"github.com/juju/worker/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/juju/tasklease/core/logger"
	"github.com/juju/tasklease/internal/cmd"
	"github.com/juju/tasklease/internal/config"
	"github.com/juju/tasklease/internal/lease"
	"github.com/juju/tasklease/internal/maintenance"
	"github.com/juju/tasklease/internal/worker/taskrunner"
)

const runDoc = `
Run competes for the lease of every configured task type, and runs each
task on this node while it holds the task's lease. On SIGINT or SIGTERM
held leases are released so that another node can take over at once.
`

type runCommand struct {
	cmd.CommandBase

	configFile cmd.FileVar
	clock      clock.Clock

	// ready, if set, is closed once every runner has started.
	ready chan struct{}
}

func newRunCommand() *runCommand {
	return &runCommand{clock: clock.WallClock}
}

func (c *runCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "run",
		Purpose: "Run leased maintenance tasks.",
		Doc:     runDoc,
	}
}

func (c *runCommand) SetFlags(f *gnuflag.FlagSet) {
	f.Var(&c.configFile, "config", "path to the node configuration file")
}

func (c *runCommand) Run(ctx *cmd.Context) error {
	cfg, err := loadConfig(ctx, c.configFile)
	if err != nil {
		return errors.Trace(err)
	}
	if cfg.LoggingConfig != "" {
		if err := loggo.ConfigureLoggers(cfg.LoggingConfig); err != nil {
			return errors.Annotate(err, "configuring loggers")
		}
	}
	if cfg.LogFile != "" {
		logFile := &lumberjack.Logger{
			Filename:   ctx.AbsPath(cfg.LogFile),
			MaxSize:    cfg.LogFileMaxSizeMB,
			MaxBackups: cfg.LogFileMaxBackups,
			Compress:   true,
		}
		defer func() { _ = logFile.Close() }()
		if _, err := loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(logFile, loggo.DefaultFormatter)); err != nil {
			return errors.Trace(err)
		}
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetLogger("leased")
	log.Infof("node %s starting with %s backend", cfg.NodeID, cfg.Backend)

	store, closeStore, err := openStore(runCtx, cfg, c.clock, logger.GetLogger("kv"))
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warningf("closing store: %v", err)
		}
	}()

	collector := lease.NewCollector()
	if cfg.MetricsAddress != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddress, collector, log)
		if err != nil {
			return errors.Trace(err)
		}
		defer shutdown()
	}

	var runners []worker.Worker
	defer func() {
		for _, w := range runners {
			if err := worker.Stop(w); err != nil {
				log.Errorf("stopping runner: %v", err)
			}
		}
	}()
	for _, taskType := range cfg.Tasks() {
		handler, err := lease.NewHandler(lease.HandlerConfig{
			NodeID:   cfg.Node(),
			TaskType: taskType,
			Duration: cfg.LeaseDuration,
			Store:    store,
			Clock:    c.clock,
			Logger:   logger.GetLogger("lease"),
			Metrics:  collector,
		})
		if err != nil {
			return errors.Trace(err)
		}
		task, err := maintenance.NewTask(maintenance.Config{
			TaskType: taskType,
			NodeID:   cfg.Node(),
			Store:    store,
			Clock:    c.clock,
			Logger:   logger.GetLogger("maintenance"),
		})
		if err != nil {
			return errors.Trace(err)
		}
		w, err := taskrunner.NewWorker(taskrunner.Config{
			Checker:  handler,
			Task:     task.Run,
			TaskType: taskType,
			Interval: cfg.CheckInterval,
			Clock:    c.clock,
			Logger:   logger.GetLogger("taskrunner"),
		})
		if err != nil {
			return errors.Trace(err)
		}
		runners = append(runners, w)
	}
	if c.ready != nil {
		close(c.ready)
	}

	<-runCtx.Done()
	log.Infof("node %s shutting down", cfg.NodeID)
	return nil
}

// serveMetrics serves the collector on addr until the returned function
// is called.
func serveMetrics(addr string, collector prometheus.Collector, log logger.Logger) (func(), error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		return nil, errors.Trace(err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "listening on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()
	log.Infof("serving metrics on %s", listener.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

func loadConfig(ctx *cmd.Context, file cmd.FileVar) (config.Config, error) {
	if file.Path == "" {
		return config.Config{}, errors.NotValidf("missing --config")
	}
	data, err := file.Read(ctx)
	if err != nil {
		return config.Config{}, errors.Trace(err)
	}
	cfg, err := config.Parse(data)
	return cfg, errors.Annotatef(err, "loading %s", file.Path)
}
