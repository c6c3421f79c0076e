// Package metrics exposes workflow and agent execution metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shreyachakravarty07/AgentTrace/pkg/engine"
)

const namespace = "agenttrace"

// Status label values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Recorder owns a private registry so several instances can coexist in tests.
type Recorder struct {
	registry      *prometheus.Registry
	agentRuns     *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
	workflowRuns  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		agentRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_total",
				Help:      "Agent steps executed, by model and outcome",
			},
			[]string{"model", "status"},
		),
		agentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_duration_seconds",
				Help:      "Time spent in the generation call of an agent step",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
		workflowRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_runs_total",
				Help:      "Workflow runs, by outcome",
			},
			[]string{"status"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// WorkflowFinished counts a finished run under status.
func (r *Recorder) WorkflowFinished(status string) {
	r.workflowRuns.WithLabelValues(status).Inc()
}

func (r *Recorder) AgentStarted(ctx context.Context, step engine.Step) {}

func (r *Recorder) AgentCompleted(ctx context.Context, step engine.Step) {
	r.agentRuns.WithLabelValues(step.Agent.Model, StatusCompleted).Inc()
	r.agentDuration.WithLabelValues(step.Agent.Model).Observe(step.Elapsed.Seconds())
}

func (r *Recorder) AgentFailed(ctx context.Context, step engine.Step) {
	r.agentRuns.WithLabelValues(step.Agent.Model, StatusFailed).Inc()
	r.agentDuration.WithLabelValues(step.Agent.Model).Observe(step.Elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
