package prometheus

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/LicenseIQ-Royalty/internal/config"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// MetricsCollector registers metric vectors on a private registry and serves
// them over HTTP. Registering a name twice returns the first vector.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	// RegisterHistogram uses prometheus.DefBuckets when buckets is nil.
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
}

type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

type Counter interface {
	Inc()
	Add(delta float64)
}

type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

type Gauge interface {
	Set(value float64)
	Add(delta float64)
}

type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

type Histogram interface {
	Observe(value float64)
}

// CollectorConfig selects the namespace and the runtime collectors.
type CollectorConfig struct {
	Namespace            string
	EnableProcessMetrics bool
	EnableGoMetrics      bool
}

// CollectorConfigFrom maps the service config onto a CollectorConfig.
func CollectorConfigFrom(cfg config.MetricsConfig) CollectorConfig {
	return CollectorConfig{
		Namespace:            cfg.Namespace,
		EnableProcessMetrics: cfg.EnableProcessMetrics,
		EnableGoMetrics:      cfg.EnableGoMetrics,
	}
}

type registryCollector struct {
	registry  *prometheus.Registry
	namespace string
	logger    logging.Logger

	mu   sync.Mutex
	vecs map[string]prometheus.Collector
}

// NewMetricsCollector creates a collector with its own registry, so several
// instances can live in one process.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, errors.InvalidParam("metrics namespace is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	reg := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if cfg.EnableGoMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}
	return &registryCollector{
		registry:  reg,
		namespace: cfg.Namespace,
		logger:    logger.Named("metrics"),
		vecs:      make(map[string]prometheus.Collector),
	}, nil
}

func (c *registryCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// registerVec registers vec under name, or returns the vector already
// registered there. ok is false when registration failed or the existing
// vector has another type.
func registerVec[V prometheus.Collector](c *registryCollector, name string, vec V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fq := prometheus.BuildFQName(c.namespace, "", name)
	if existing, found := c.vecs[fq]; found {
		v, ok := existing.(V)
		if !ok {
			c.logger.Warn("metric type mismatch", logging.String("name", fq))
		}
		return v, ok
	}
	if err := c.registry.Register(vec); err != nil {
		c.logger.Error("failed to register metric", logging.String("name", fq), logging.Err(err))
		var zero V
		return zero, false
	}
	c.vecs[fq] = vec
	return vec, true
}

func (c *registryCollector) RegisterCounter(name, help string, labels ...string) CounterVec {
	vec, ok := registerVec(c, name, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace, Name: name, Help: help,
	}, labels))
	if !ok {
		return noopCounters{}
	}
	return counterVec{vec}
}

func (c *registryCollector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	vec, ok := registerVec(c, name, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace, Name: name, Help: help,
	}, labels))
	if !ok {
		return noopGauges{}
	}
	return gaugeVec{vec}
}

func (c *registryCollector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	vec, ok := registerVec(c, name, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace, Name: name, Help: help, Buckets: buckets,
	}, labels))
	if !ok {
		return noopHistograms{}
	}
	return histogramVec{vec}
}

type counterVec struct{ vec *prometheus.CounterVec }

func (v counterVec) WithLabelValues(lvs ...string) Counter { return v.vec.WithLabelValues(lvs...) }

type gaugeVec struct{ vec *prometheus.GaugeVec }

func (v gaugeVec) WithLabelValues(lvs ...string) Gauge { return v.vec.WithLabelValues(lvs...) }

type histogramVec struct{ vec *prometheus.HistogramVec }

func (v histogramVec) WithLabelValues(lvs ...string) Histogram { return v.vec.WithLabelValues(lvs...) }

// noopMetric stands in for a vector that could not be registered.
type noopMetric struct{}

func (noopMetric) Inc()            {}
func (noopMetric) Add(float64)     {}
func (noopMetric) Set(float64)     {}
func (noopMetric) Observe(float64) {}

type noopCounters struct{}

func (noopCounters) WithLabelValues(...string) Counter { return noopMetric{} }

type noopGauges struct{}

func (noopGauges) WithLabelValues(...string) Gauge { return noopMetric{} }

type noopHistograms struct{}

func (noopHistograms) WithLabelValues(...string) Histogram { return noopMetric{} }
