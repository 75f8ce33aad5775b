// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config_test

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	corelease "github.com/juju/tasklease/core/lease"
	"github.com/juju/tasklease/internal/config"
)

const nodeID = "4b0c4f6e-5a3a-4f5f-9a8e-0d5b3c1e2f10"

type configSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&configSuite{})

func (s *configSuite) TestDefaults(c *gc.C) {
	cfg, err := config.Parse([]byte("node-id: " + nodeID + "\n"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Backend, gc.Equals, config.BackendMemory)
	c.Check(cfg.LeaseDuration, gc.Equals, 30*time.Second)
	c.Check(cfg.CheckInterval, gc.Equals, 10*time.Second)
	c.Check(cfg.Node().String(), gc.Equals, nodeID)
	c.Check(cfg.Tasks(), jc.DeepEquals, corelease.AllTaskTypes())
	c.Check(cfg.Redis.KeyPrefix, gc.Equals, config.DefaultKeyPrefix)
}

func (s *configSuite) TestDefaultIsValid(c *gc.C) {
	c.Check(config.Default().Validate(), jc.ErrorIsNil)
}

func (s *configSuite) TestFullConfig(c *gc.C) {
	cfg, err := config.Parse([]byte(`
node-id: ` + nodeID + `
backend: etcd
lease-duration: 1m
check-interval: 15s
task-types: [index-compaction]
metrics-address: ":9090"
logging-config: "<root>=INFO;tasklease.lease=DEBUG"
log-file: /var/log/leased.log
log-file-max-backups: 5
etcd:
  endpoints: ["10.0.0.1:2379", "10.0.0.2:2379"]
  key-prefix: cluster-a/
`))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Backend, gc.Equals, config.BackendEtcd)
	c.Check(cfg.LeaseDuration, gc.Equals, time.Minute)
	c.Check(cfg.CheckInterval, gc.Equals, 15*time.Second)
	c.Check(cfg.Tasks(), jc.DeepEquals, []corelease.TaskType{corelease.IndexCompaction})
	c.Check(cfg.MetricsAddress, gc.Equals, ":9090")
	c.Check(cfg.LoggingConfig, gc.Equals, "<root>=INFO;tasklease.lease=DEBUG")
	c.Check(cfg.LogFile, gc.Equals, "/var/log/leased.log")
	c.Check(cfg.LogFileMaxSizeMB, gc.Equals, config.DefaultLogFileMaxSizeMB)
	c.Check(cfg.LogFileMaxBackups, gc.Equals, 5)
	c.Check(cfg.Etcd, jc.DeepEquals, config.EtcdConfig{
		Endpoints:   []string{"10.0.0.1:2379", "10.0.0.2:2379"},
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "cluster-a/",
	})
}

func (s *configSuite) TestInvalid(c *gc.C) {
	tests := []struct {
		yaml string
		err  string
	}{{
		yaml: "backend: memory",
		err:  `node-id "" not valid`,
	}, {
		yaml: "node-id: node-1",
		err:  `node-id "node-1" not valid`,
	}, {
		yaml: "node-id: 00000000-0000-0000-0000-000000000000",
		err:  `node-id "00000000-0000-0000-0000-000000000000" not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\nlease-duration: -1s",
		err:  `lease-duration -1s not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\ncheck-interval: 20s",
		err:  `check-interval 20s longer than half lease-duration 30s not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\ntask-types: [vacuum]",
		err:  `task type "vacuum" not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\ntask-types: [index-compaction, index-compaction]",
		err:  `duplicate task type "index-compaction" not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\nlog-file-max-backups: -1",
		err:  `negative log file limits not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\nbackend: postgres",
		err:  `backend "postgres" not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\nbackend: sqlite",
		err:  `sqlite backend without path not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\nbackend: dqlite\ndqlite: {dir: /var/lib/leased}",
		err:  `dqlite backend without dir and address not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\nbackend: redis",
		err:  `redis backend without addrs not valid`,
	}, {
		yaml: "node-id: " + nodeID + "\nbackend: etcd",
		err:  `etcd backend without endpoints not valid`,
	}}
	for i, test := range tests {
		c.Logf("test %d: %s", i, test.yaml)
		_, err := config.Parse([]byte(test.yaml))
		c.Check(err, jc.Satisfies, errors.IsNotValid)
		c.Check(err, gc.ErrorMatches, test.err)
	}
}

func (s *configSuite) TestBadYAML(c *gc.C) {
	_, err := config.Parse([]byte("node-id: [unterminated"))
	c.Check(err, gc.ErrorMatches, "parsing config: .*")
}
