package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds the service metrics. It satisfies the metrics ports of
// the provider, extraction, calculation and batch packages as well as the
// cache access recorder.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPRequestSize     HistogramVec
	HTTPResponseSize    HistogramVec
	HTTPActiveRequests  GaugeVec

	// Providers
	ProviderRequestsTotal   CounterVec
	ProviderRequestDuration HistogramVec
	BreakerTransitionsTotal CounterVec
	BreakerState            GaugeVec
	FailoverTotal           CounterVec

	// Extraction
	ExtractionsTotal    CounterVec
	ExtractionDuration  HistogramVec
	ExtractedRulesTotal CounterVec
	RejectedRulesTotal  CounterVec

	// Calculation
	CalculationsTotal       CounterVec
	CalculationDuration     HistogramVec
	CalculationTransactions CounterVec
	CalculationUnmatched    CounterVec

	// Infrastructure
	BatchItemsTotal   CounterVec
	BatchDuration     HistogramVec
	CacheHitsTotal    CounterVec
	CacheMissesTotal  CounterVec
	DBQueryDuration   HistogramVec
	ErrorsTotal       CounterVec
	HealthCheckStatus GaugeVec
}

var (
	DefaultHTTPDurationBuckets        = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultLLMDurationBuckets         = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
	DefaultCalculationDurationBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30}
	DefaultSizeBuckets                = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
	DefaultDBDurationBuckets          = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// Breaker state gauge values.
var breakerStateValue = map[string]float64{
	"CLOSED": 0,
	"OPEN":   1,
}

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPRequestSize = collector.RegisterHistogram("http_request_size_bytes", "HTTP request size", DefaultSizeBuckets, "method", "path")
	m.HTTPResponseSize = collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", DefaultSizeBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	m.ProviderRequestsTotal = collector.RegisterCounter("provider_requests_total", "Model provider requests", "provider", "operation", "outcome")
	m.ProviderRequestDuration = collector.RegisterHistogram("provider_request_duration_seconds", "Model provider request duration", DefaultLLMDurationBuckets, "provider", "operation")
	m.BreakerTransitionsTotal = collector.RegisterCounter("provider_breaker_transitions_total", "Circuit breaker transitions", "provider", "from", "to")
	m.BreakerState = collector.RegisterGauge("provider_breaker_state", "Circuit breaker state (0=closed, 1=open)", "provider")
	m.FailoverTotal = collector.RegisterCounter("provider_failover_total", "Requests routed to the fallback provider", "operation", "reason")

	m.ExtractionsTotal = collector.RegisterCounter("extractions_total", "Rule extractions", "provider", "cached")
	m.ExtractionDuration = collector.RegisterHistogram("extraction_duration_seconds", "Rule extraction duration", DefaultLLMDurationBuckets, "provider")
	m.ExtractedRulesTotal = collector.RegisterCounter("extracted_rules_total", "Rules accepted from extraction", "provider")
	m.RejectedRulesTotal = collector.RegisterCounter("rejected_rules_total", "Rules dropped by shape validation", "provider")

	m.CalculationsTotal = collector.RegisterCounter("calculations_total", "Royalty calculations", "complete")
	m.CalculationDuration = collector.RegisterHistogram("calculation_duration_seconds", "Royalty calculation duration", DefaultCalculationDurationBuckets, "complete")
	m.CalculationTransactions = collector.RegisterCounter("calculation_transactions_total", "Transactions evaluated")
	m.CalculationUnmatched = collector.RegisterCounter("calculation_unmatched_total", "Transactions with no matching rule")

	m.BatchItemsTotal = collector.RegisterCounter("batch_items_total", "Batch items by result", "batch", "result")
	m.BatchDuration = collector.RegisterHistogram("batch_duration_seconds", "Batch duration", DefaultLLMDurationBuckets, "batch")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")

	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "code")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

// RecordProviderRequest counts one provider call.
func (m *AppMetrics) RecordProviderRequest(provider, operation, outcome string, d time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// RecordBreakerTransition counts a breaker state change and updates the
// state gauge.
func (m *AppMetrics) RecordBreakerTransition(provider, from, to string) {
	m.BreakerTransitionsTotal.WithLabelValues(provider, from, to).Inc()
	if v, ok := breakerStateValue[to]; ok {
		m.BreakerState.WithLabelValues(provider).Set(v)
	}
}

// RecordFailover counts a request served by the fallback provider.
func (m *AppMetrics) RecordFailover(operation, reason string) {
	m.FailoverTotal.WithLabelValues(operation, reason).Inc()
}

// RecordExtraction records one finished extraction. Cached results do not
// observe a duration.
func (m *AppMetrics) RecordExtraction(provider string, cached bool, rules, rejected int, d time.Duration) {
	m.ExtractionsTotal.WithLabelValues(provider, strconv.FormatBool(cached)).Inc()
	if cached {
		return
	}
	m.ExtractionDuration.WithLabelValues(provider).Observe(d.Seconds())
	m.ExtractedRulesTotal.WithLabelValues(provider).Add(float64(rules))
	m.RejectedRulesTotal.WithLabelValues(provider).Add(float64(rejected))
}

// RecordCalculation records one calculation run.
func (m *AppMetrics) RecordCalculation(complete bool, transactions, unmatched int, d time.Duration) {
	label := strconv.FormatBool(complete)
	m.CalculationsTotal.WithLabelValues(label).Inc()
	m.CalculationDuration.WithLabelValues(label).Observe(d.Seconds())
	m.CalculationTransactions.WithLabelValues().Add(float64(transactions))
	m.CalculationUnmatched.WithLabelValues().Add(float64(unmatched))
}

// RecordBatchProcessing records one finished batch.
func (m *AppMetrics) RecordBatchProcessing(name string, total, succeeded, failed int, d time.Duration) {
	m.BatchItemsTotal.WithLabelValues(name, "succeeded").Add(float64(succeeded))
	m.BatchItemsTotal.WithLabelValues(name, "failed").Add(float64(failed))
	if skipped := total - succeeded - failed; skipped > 0 {
		m.BatchItemsTotal.WithLabelValues(name, "skipped").Add(float64(skipped))
	}
	m.BatchDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RecordCacheAccess counts a cache hit or miss.
func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordDBQuery observes a query and counts it as an error when err is set.
func (m *AppMetrics) RecordDBQuery(operation string, d time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues("database", "query_error").Inc()
	}
}

// RecordHTTPRequest records a served request.
func (m *AppMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration, reqSize, respSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// AddInFlight adjusts the active request gauge for method.
func (m *AppMetrics) AddInFlight(method string, delta float64) {
	m.HTTPActiveRequests.WithLabelValues(method).Add(delta)
}

// RecordError counts an error by component and error code.
func (m *AppMetrics) RecordError(component, code string) {
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}

// SetHealth sets the health gauge for a component.
func (m *AppMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
