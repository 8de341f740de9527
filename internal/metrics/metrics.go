package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics метрики синхронизации коллекций
type SyncMetrics interface {
	ObserveOps(collection, kind string, n int)
	IncBatch(collection, result string)
	ObserveSync(collection string, d time.Duration)
}

// BillingMetrics метрики биллинга и вебхуков
type BillingMetrics interface {
	IncWebhook(eventType, result string)
	IncBillingUpdate(source, status string)
}

// Metrics - все метрики сервиса на одном реестре.
type Metrics struct {
	registry *prometheus.Registry

	syncOps       *prometheus.CounterVec
	syncBatches   *prometheus.CounterVec
	syncDuration  *prometheus.HistogramVec
	webhooks      *prometheus.CounterVec
	billing       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New регистрирует метрики на новом реестре вместе с коллекторами Go и процесса.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		syncOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collection_sync_ops_total",
				Help: "Write operations scheduled by collection syncs",
			},
			[]string{"collection", "kind"},
		),
		syncBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collection_sync_batches_total",
				Help: "Batches committed or failed by collection syncs",
			},
			[]string{"collection", "result"},
		),
		syncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collection_sync_duration_seconds",
				Help:    "Duration of a full collection sync",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection"},
		),
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhooks_total",
				Help: "Billing webhook deliveries by type and result",
			},
			[]string{"type", "result"},
		),
		billing: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_record_updates_total",
				Help: "Billing record writes by source and resulting status",
			},
			[]string{"source", "status"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDurations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// Registry отдает реестр для /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveOps(collection, kind string, n int) {
	if n > 0 {
		m.syncOps.WithLabelValues(collection, kind).Add(float64(n))
	}
}

func (m *Metrics) IncBatch(collection, result string) {
	m.syncBatches.WithLabelValues(collection, result).Inc()
}

func (m *Metrics) ObserveSync(collection string, d time.Duration) {
	m.syncDuration.WithLabelValues(collection).Observe(d.Seconds())
}

func (m *Metrics) IncWebhook(eventType, result string) {
	m.webhooks.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) IncBillingUpdate(source, status string) {
	m.billing.WithLabelValues(source, status).Inc()
}

// GinMiddleware считает запросы по шаблону маршрута (не по сырому пути).
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDurations.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// Nop - метрики-заглушки для тестов.
type Nop struct{}

func (Nop) ObserveOps(string, string, int) {}
func (Nop) IncBatch(string, string) {}
func (Nop) ObserveSync(string, time.Duration) {}
func (Nop) IncWebhook(string, string) {}
func (Nop) IncBillingUpdate(string, string) {}
