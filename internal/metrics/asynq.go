package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobgate",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Background task run time by type and outcome.",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 15, 30, 60, 120},
		},
		[]string{"task_type", "outcome"},
	)

	tasksRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "jobgate",
			Subsystem: "worker",
			Name:      "tasks_running",
			Help:      "Background tasks currently executing.",
		},
		[]string{"task_type"},
	)
)

// taskOutcome distinguishes tasks that asynq will retry from those it drops.
func taskOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "dropped"
	default:
		return "retry"
	}
}

// AsynqMetricsMiddleware times every task handled by the worker mux.
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			running := tasksRunning.WithLabelValues(task.Type())
			running.Inc()
			defer running.Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(task.Type(), taskOutcome(err)).Observe(time.Since(start).Seconds())
			return err
		})
	}
}
