// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease

import (
	"github.com/prometheus/client_golang/prometheus"

	corelease "github.com/juju/tasklease/core/lease"
)

const (
	metricsNamespace = "tasklease"

	outcomeAcquired = "acquired"
	outcomeRenewed  = "renewed"
	outcomeHeld     = "held"
	outcomeNotOwner = "not-owner"
	outcomeConflict = "conflict"
	outcomeReleased = "released"
	outcomeError    = "error"
)

// Collector is a prometheus.Collector that tracks lease decisions for
// every handler sharing it. A nil *Collector records nothing.
type Collector struct {
	checks *prometheus.CounterVec
	owner  *prometheus.GaugeVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "check_total",
			Help:      "Number of lease decisions, by task type and outcome.",
		}, []string{"task_type", "outcome"}),
		owner: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "owner",
			Help:      "1 if this node held the task lease at its last check, 0 otherwise.",
		}, []string{"task_type"}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.checks.Describe(ch)
	c.owner.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.checks.Collect(ch)
	c.owner.Collect(ch)
}

func (c *Collector) observe(taskType corelease.TaskType, outcome string) {
	if c == nil {
		return
	}
	c.checks.WithLabelValues(taskType.String(), outcome).Inc()
}

func (c *Collector) setOwner(taskType corelease.TaskType, owned bool) {
	if c == nil {
		return
	}
	var v float64
	if owned {
		v = 1
	}
	c.owner.WithLabelValues(taskType.String()).Set(v)
}
