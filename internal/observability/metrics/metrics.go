package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "pvsim_"

	resultSuccess = "success"
	resultError   = "error"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

var (
	registerOnce sync.Once

	simulationTotal   *prometheus.CounterVec
	simulationLatency *prometheus.HistogramVec

	weatherFetchTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers service metrics and DB pool gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		simulationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "simulation_runs_total",
				Help: "Total simulation runs by source and status",
			},
			[]string{"source", "status"},
		)
		simulationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "simulation_run_seconds",
				Help:    "Simulation run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "status"},
		)

		weatherFetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "weather_fetch_total",
				Help: "Weather series acquisitions by source and cache outcome",
			},
			[]string{"source", "cache"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Run exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Run export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"route", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)

		prometheus.MustRegister(
			simulationTotal,
			simulationLatency,
			weatherFetchTotal,
			exportTotal,
			exportLatency,
			httpRequests,
			httpLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSimulation records one finished run.
func ObserveSimulation(source, status string, seconds float64) {
	if source == "" {
		source = "unknown"
	}
	if status == "" {
		status = resultError
	}
	if simulationTotal != nil {
		simulationTotal.WithLabelValues(source, status).Inc()
	}
	if simulationLatency != nil {
		simulationLatency.WithLabelValues(source, status).Observe(seconds)
	}
}

// ObserveWeatherFetch records a weather acquisition and its cache outcome.
func ObserveWeatherFetch(source string, hit bool) {
	if source == "" {
		source = "unknown"
	}
	outcome := cacheMiss
	if hit {
		outcome = cacheHit
	}
	if weatherFetchTotal != nil {
		weatherFetchTotal.WithLabelValues(source, outcome).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveHTTP records one served request.
func ObserveHTTP(route string, statusCode int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	status := "2xx"
	switch {
	case statusCode >= 500:
		status = "5xx"
	case statusCode >= 400:
		status = "4xx"
	case statusCode >= 300:
		status = "3xx"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, status).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(route).Observe(duration.Seconds())
	}
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	open := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open database connections",
		},
		func() float64 { return float64(db.Stats().OpenConnections) },
	)
	inUse := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_in_use_connections",
			Help: "In-use database connections",
		},
		func() float64 { return float64(db.Stats().InUse) },
	)
	if err := prometheus.Register(open); err != nil && logger != nil {
		logger.Printf("metrics: register db gauge: %v", err)
	}
	if err := prometheus.Register(inUse); err != nil && logger != nil {
		logger.Printf("metrics: register db gauge: %v", err)
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
