// Package metrics exports swarm activity as Prometheus metrics. A Collector
// implements swarm.Hooks; register it with swarm.Options.Hooks.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/swarm"
)

// Collector records run, step, tool and handoff metrics.
type Collector struct {
	swarm.NopHooks

	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runSteps     prometheus.Histogram
	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	handoffs     *prometheus.CounterVec
	activeRuns   prometheus.Gauge
}

// NewCollector registers the metrics with reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of swarm runs by terminal status",
		}, []string{"status"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Swarm run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		runSteps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Number of steps per run",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		stepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of agent steps",
		}, []string{"agent"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Agent step duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"agent"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations",
		}, []string{"agent", "tool", "result"}),
		handoffs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of resolved handoffs",
		}, []string{"from", "to"}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of runs in progress",
		}),
	}
}

// OnRunStart implements swarm.Hooks.
func (c *Collector) OnRunStart(context.Context, string, string) { c.activeRuns.Inc() }

// OnStepComplete implements swarm.Hooks.
func (c *Collector) OnStepComplete(_ context.Context, step core.ExecutionStep, elapsed time.Duration) {
	c.stepsTotal.WithLabelValues(step.Agent).Inc()
	c.stepDuration.WithLabelValues(step.Agent).Observe(elapsed.Seconds())

	for _, tc := range step.ToolCalls {
		result := "success"
		if tc.Failed() {
			result = "failure"
		}
		c.toolCalls.WithLabelValues(step.Agent, tc.Tool, result).Inc()
	}
}

// OnHandoff implements swarm.Hooks.
func (c *Collector) OnHandoff(_ context.Context, from, to string) {
	c.handoffs.WithLabelValues(from, to).Inc()
}

// OnRunComplete implements swarm.Hooks.
func (c *Collector) OnRunComplete(_ context.Context, res core.RunResult, elapsed time.Duration) {
	c.activeRuns.Dec()
	status := res.Status.String()
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	c.runSteps.Observe(float64(len(res.History)))
}
