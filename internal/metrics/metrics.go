// Package metrics exports pipeline counters and latencies to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "classbuddy"

// Recorder implements the pipeline observer. A nil *Recorder records nothing.
type Recorder struct {
	items          *prometheus.CounterVec
	tasks          *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	runs           prometheus.Counter
	gatherer       prometheus.Gatherer
}

// New registers the collectors on reg, reusing collectors that are already
// registered. A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{gatherer: reg}
	var err error
	if r.items, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_processed_total",
		Help:      "Items processed by final status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if r.tasks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_tasks_total",
		Help:      "Generation tasks by artifact kind and outcome.",
	}, []string{"kind", "outcome"})); err != nil {
		return nil, err
	}
	if r.publishLatency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "publish_duration_seconds",
		Help:      "Latency of artifact uploads.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if r.storeErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "State store failures by operation.",
	}, []string{"op"})); err != nil {
		return nil, err
	}
	if r.runs, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline passes started.",
	})); err != nil {
		return nil, err
	}
	return r, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) RunStarted() {
	if r == nil {
		return
	}
	r.runs.Inc()
}

func (r *Recorder) ItemDone(status string) {
	if r == nil {
		return
	}
	r.items.WithLabelValues(status).Inc()
}

func (r *Recorder) TaskDone(kind, outcome string) {
	if r == nil {
		return
	}
	r.tasks.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) Published(kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.publishLatency.WithLabelValues(kind).Observe(d.Seconds())
}

func (r *Recorder) StoreError(op string) {
	if r == nil {
		return
	}
	r.storeErrors.WithLabelValues(op).Inc()
}
