// Package metrics holds the Prometheus collectors shared by the fetcher,
// geocoder and pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one run.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	RecordsParsed    *prometheus.CounterVec
	RecordsDropped   *prometheus.CounterVec
	ParseErrorsTotal prometheus.Counter
	GeocodeLookups   *prometheus.CounterVec
	GeocodeDuration  prometheus.Histogram
	RecordsExported  prometheus.Counter
	FetchErrorsTotal *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurants_fetch_requests_total",
			Help: "Listing page requests by HTTP status code.",
		},
		[]string{"code"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "restaurants_fetch_duration_seconds",
			Help:    "Listing page request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	parsed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurants_records_parsed_total",
			Help: "Records extracted from listing pages by parse strategy.",
		},
		[]string{"strategy"},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurants_records_dropped_total",
			Help: "Records dropped before export by reason.",
		},
		[]string{"reason"},
	)
	parseErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "restaurants_parse_errors_total",
			Help: "Listing pages that yielded no records.",
		},
	)
	geocodeLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurants_geocode_lookups_total",
			Help: "Geocoding lookups by outcome.",
		},
		[]string{"outcome"},
	)
	geocodeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "restaurants_geocode_duration_seconds",
			Help:    "Geocoding request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	exported := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "restaurants_records_exported_total",
			Help: "Records written to the output file.",
		},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurants_fetch_errors_total",
			Help: "Listing page fetch failures by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, parsed, dropped, parseErrors,
		geocodeLookups, geocodeDuration, exported, fetchErrors)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		RecordsParsed:    parsed,
		RecordsDropped:   dropped,
		ParseErrorsTotal: parseErrors,
		GeocodeLookups:   geocodeLookups,
		GeocodeDuration:  geocodeDuration,
		RecordsExported:  exported,
		FetchErrorsTotal: fetchErrors,
	}
}

// IncRequest counts one listing request with its status code.
func (m *Metrics) IncRequest(statusCode int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(fmt.Sprint(statusCode)).Inc()
}

// ObserveDuration records a listing request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddParsed counts records extracted with the given strategy.
func (m *Metrics) AddParsed(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsParsed.WithLabelValues(strategy).Add(float64(n))
}

// IncDropped counts a record dropped for reason.
func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.RecordsDropped.WithLabelValues(reason).Inc()
}

// IncParseError counts a page that yielded no records.
func (m *Metrics) IncParseError() {
	if m == nil {
		return
	}
	m.ParseErrorsTotal.Inc()
}

// IncGeocode counts a geocoding lookup outcome.
func (m *Metrics) IncGeocode(outcome string) {
	if m == nil {
		return
	}
	m.GeocodeLookups.WithLabelValues(outcome).Inc()
}

// ObserveGeocode records a geocoding request duration.
func (m *Metrics) ObserveGeocode(d time.Duration) {
	if m == nil {
		return
	}
	m.GeocodeDuration.Observe(d.Seconds())
}

// AddExported counts records written to the output.
func (m *Metrics) AddExported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsExported.Add(float64(n))
}

// IncFetchError counts a fetch failure by type label.
func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(errorType).Inc()
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
