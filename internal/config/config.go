// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the configuration of a leased node.
package config

import (
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	corelease "github.com/juju/tasklease/core/lease"
)

const (
	// DefaultLeaseDuration is how long a lease lasts unless configured.
	DefaultLeaseDuration = 30 * time.Second

	// DefaultCheckInterval is the time between lease checks unless
	// configured.
	DefaultCheckInterval = 10 * time.Second

	// DefaultLogFileMaxSizeMB and DefaultLogFileMaxBackups bound the
	// disk used by a rotated log file.
	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 2

	// DefaultKeyPrefix namespaces keys in shared backends.
	DefaultKeyPrefix = "tasklease/"
)

// Backend names a kv.Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendDqlite Backend = "dqlite"
	BackendRedis  Backend = "redis"
	BackendEtcd   Backend = "etcd"
)

// Config is the contents of a leased configuration file.
type Config struct {
	// NodeID identifies this node as a lease owner. It must be a UUID
	// that is unique in the cluster and stable across restarts.
	NodeID string `yaml:"node-id"`

	Backend Backend `yaml:"backend"`

	LeaseDuration time.Duration `yaml:"lease-duration"`
	CheckInterval time.Duration `yaml:"check-interval"`

	// TaskTypes lists the tasks this node competes for. Empty means
	// all of them.
	TaskTypes []corelease.TaskType `yaml:"task-types,omitempty"`

	// MetricsAddress, if set, is where prometheus metrics are served.
	MetricsAddress string `yaml:"metrics-address,omitempty"`

	// LoggingConfig is a loggo configuration string.
	LoggingConfig string `yaml:"logging-config,omitempty"`

	// LogFile, if set, receives log output in place of stderr. It is
	// rotated once it reaches LogFileMaxSizeMB.
	LogFile           string `yaml:"log-file,omitempty"`
	LogFileMaxSizeMB  int    `yaml:"log-file-max-size-mb,omitempty"`
	LogFileMaxBackups int    `yaml:"log-file-max-backups,omitempty"`

	SQLite SQLiteConfig `yaml:"sqlite,omitempty"`
	Dqlite DqliteConfig `yaml:"dqlite,omitempty"`
	Redis  RedisConfig  `yaml:"redis,omitempty"`
	Etcd   EtcdConfig   `yaml:"etcd,omitempty"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DqliteConfig configures the dqlite backend.
type DqliteConfig struct {
	Dir      string   `yaml:"dir"`
	Address  string   `yaml:"address"`
	Cluster  []string `yaml:"cluster,omitempty"`
	Database string   `yaml:"database,omitempty"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password,omitempty"`
	DB        int      `yaml:"db,omitempty"`
	KeyPrefix string   `yaml:"key-prefix,omitempty"`
}

// EtcdConfig configures the etcd backend.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial-timeout,omitempty"`
	KeyPrefix   string        `yaml:"key-prefix,omitempty"`
}

// Default returns a config using the in-memory backend and the default
// timings, with a fresh node id.
func Default() Config {
	return Config{
		NodeID:        uuid.NewString(),
		Backend:       BackendMemory,
		LeaseDuration: DefaultLeaseDuration,
		CheckInterval: DefaultCheckInterval,
	}
}

// Parse reads a YAML config. Unset fields take their defaults, except
// the node id which must always be given.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.NodeID = ""
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Annotate(err, "parsing config")
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.LogFileMaxSizeMB == 0 {
		c.LogFileMaxSizeMB = DefaultLogFileMaxSizeMB
	}
	if c.LogFileMaxBackups == 0 {
		c.LogFileMaxBackups = DefaultLogFileMaxBackups
	}
	if c.Dqlite.Database == "" {
		c.Dqlite.Database = "tasklease"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultKeyPrefix
	}
	if c.Etcd.KeyPrefix == "" {
		c.Etcd.KeyPrefix = DefaultKeyPrefix
	}
	if c.Etcd.DialTimeout == 0 {
		c.Etcd.DialTimeout = 5 * time.Second
	}
}

// Node returns the parsed node id. It is only meaningful on a config
// that has passed Validate.
func (c Config) Node() uuid.UUID {
	id, _ := uuid.Parse(c.NodeID)
	return id
}

// Tasks returns the task types this node competes for.
func (c Config) Tasks() []corelease.TaskType {
	if len(c.TaskTypes) == 0 {
		return corelease.AllTaskTypes()
	}
	return c.TaskTypes
}

// Validate returns an error if the config cannot run a node.
func (c Config) Validate() error {
	id, err := uuid.Parse(c.NodeID)
	if err != nil || id == uuid.Nil {
		return errors.NotValidf("node-id %q", c.NodeID)
	}
	if c.LeaseDuration <= 0 {
		return errors.NotValidf("lease-duration %v", c.LeaseDuration)
	}
	if c.CheckInterval <= 0 {
		return errors.NotValidf("check-interval %v", c.CheckInterval)
	}
	// An owner that checks less often than this can let its lease
	// lapse between checks.
	if c.CheckInterval > c.LeaseDuration/2 {
		return errors.NotValidf("check-interval %v longer than half lease-duration %v",
			c.CheckInterval, c.LeaseDuration)
	}

	if c.LogFileMaxSizeMB < 0 || c.LogFileMaxBackups < 0 {
		return errors.NotValidf("negative log file limits")
	}

	seen := make(map[corelease.TaskType]bool)
	for _, t := range c.TaskTypes {
		if err := t.Validate(); err != nil {
			return errors.Trace(err)
		}
		if seen[t] {
			return errors.NotValidf("duplicate task type %q", t)
		}
		seen[t] = true
	}

	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.NotValidf("sqlite backend without path")
		}
	case BackendDqlite:
		if c.Dqlite.Dir == "" || c.Dqlite.Address == "" {
			return errors.NotValidf("dqlite backend without dir and address")
		}
	case BackendRedis:
		if len(c.Redis.Addrs) == 0 {
			return errors.NotValidf("redis backend without addrs")
		}
	case BackendEtcd:
		if len(c.Etcd.Endpoints) == 0 {
			return errors.NotValidf("etcd backend without endpoints")
		}
	default:
		return errors.NotValidf("backend %q", c.Backend)
	}
	return nil
}
