package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_completions_total",
		Help: "Completions by dispatch kind and outcome.",
	}, []string{"dispatch", "outcome"})

	CompletionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_completion_duration_seconds",
		Help:    "Time from dispatch to the end of the completion stream.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"dispatch"})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_tool_calls_total",
		Help: "Tool invocations by tool and outcome.",
	}, []string{"tool", "outcome"})

	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_tokens_total",
		Help: "Provider reported token usage by model and kind.",
	}, []string{"model", "kind"})

	BestEffortFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_best_effort_failures_total",
		Help: "Failed side effects that were logged and ignored.",
	}, []string{"effect"})

	MemoryTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_memory_tasks_total",
		Help: "Memory write tasks processed by the worker, by outcome.",
	}, []string{"outcome"})
)

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
