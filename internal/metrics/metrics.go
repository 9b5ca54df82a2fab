// Package metrics holds the process Prometheus collectors. All methods accept
// a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	TasksSubmitted *prometheus.CounterVec
	TasksFinished  *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TasksInFlight  *prometheus.GaugeVec

	LoadOutcomes *prometheus.CounterVec
	DatasetReady prometheus.Gauge

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cellxgene_worker_tasks_submitted_total",
				Help: "Tasks submitted to the worker dispatcher",
			},
			[]string{"kind"},
		),
		TasksFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cellxgene_worker_tasks_finished_total",
				Help: "Tasks that produced an outcome",
			},
			[]string{"kind", "result"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cellxgene_worker_task_duration_seconds",
				Help:    "Task body duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"kind"},
		),
		TasksInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cellxgene_worker_tasks_in_flight",
				Help: "Tasks submitted and not yet finished",
			},
			[]string{"kind"},
		),
		LoadOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cellxgene_dataset_loads_total",
				Help: "Dataset load outcomes handled on the UI thread",
			},
			[]string{"result"},
		),
		DatasetReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cellxgene_dataset_attached",
				Help: "1 while a dataset is attached to the backend",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cellxgene_http_requests_total",
				Help: "Backend HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cellxgene_http_request_duration_seconds",
				Help:    "Backend HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TaskSubmitted(kind string) {
	if m == nil {
		return
	}
	m.TasksSubmitted.WithLabelValues(kind).Inc()
	m.TasksInFlight.WithLabelValues(kind).Inc()
}

func (m *Metrics) TaskFinished(kind string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.TasksFinished.WithLabelValues(kind, result).Inc()
	m.TaskDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.TasksInFlight.WithLabelValues(kind).Dec()
}

// LoadHandled records a load outcome: "ok", "error" or "stale".
func (m *Metrics) LoadHandled(result string) {
	if m == nil {
		return
	}
	m.LoadOutcomes.WithLabelValues(result).Inc()
}

func (m *Metrics) SetDatasetAttached(attached bool) {
	if m == nil {
		return
	}
	if attached {
		m.DatasetReady.Set(1)
		return
	}
	m.DatasetReady.Set(0)
}

func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
