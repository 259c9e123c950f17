package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder publishes operation outcomes and reconciliation
// counts as Prometheus collectors.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	nodes      *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the recorder collectors on reg under
// namespace. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer, namespace string) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "batchcore"
	}
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total service operations by status.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_nodes_total",
			Help:      "Nodes handled by reconciliation by outcome.",
		}, []string{"level", "outcome"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.nodes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveReconcile counts the outcome of reconciling one level.
func (r *PrometheusMetricsRecorder) ObserveReconcile(level string, report ReconcileReport) {
	r.nodes.WithLabelValues(level, "matched").Add(float64(len(report.Matched)))
	r.nodes.WithLabelValues(level, "created").Add(float64(len(report.Created)))
	r.nodes.WithLabelValues(level, "stale").Add(float64(len(report.Stale)))
	r.nodes.WithLabelValues(level, "ambiguous").Add(float64(len(report.Ambiguous)))
}

// reconcileObserver is implemented by recorders that track per-level counts.
type reconcileObserver interface {
	ObserveReconcile(level string, report ReconcileReport)
}

// LoggerTracer emits one debug record per finished span.
type LoggerTracer struct {
	logger Logger
	now    func() time.Time
}

// NewLoggerTracer returns a tracer writing spans to logger.
func NewLoggerTracer(logger Logger) *LoggerTracer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LoggerTracer{logger: logger, now: time.Now}
}

// Start implements Tracer.
func (t *LoggerTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &loggerSpan{tracer: t, operation: operation, started: t.now()}
}

type loggerSpan struct {
	tracer    *LoggerTracer
	operation string
	started   time.Time
}

func (s *loggerSpan) End(err error) {
	elapsed := s.tracer.now().Sub(s.started)
	if err != nil {
		s.tracer.logger.Warn("span failed", "operation", s.operation, "duration", elapsed, "error", err)
		return
	}
	s.tracer.logger.Debug("span finished", "operation", s.operation, "duration", elapsed)
}
