package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/tlsbox"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// PKI metrics
	CertificatesIssuedTotal metric.Int64Counter
	SigningErrorsTotal      metric.Int64Counter
	ExtensionsSkippedTotal  metric.Int64Counter
	ArtifactsWrittenTotal   metric.Int64Counter

	// HTTP metrics
	RequestsTotal   metric.Int64Counter
	RequestDuration metric.Float64Histogram
	ActiveRequests  metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.CertificatesIssuedTotal, _ = meter.Int64Counter(
		"tlsbox.pki.certificates.issued.total",
		metric.WithDescription("Total number of certificates signed"),
		metric.WithUnit("{certificate}"),
	)

	m.SigningErrorsTotal, _ = meter.Int64Counter(
		"tlsbox.pki.signing.errors.total",
		metric.WithDescription("Total number of failed signing attempts"),
		metric.WithUnit("{error}"),
	)

	m.ExtensionsSkippedTotal, _ = meter.Int64Counter(
		"tlsbox.pki.extensions.skipped.total",
		metric.WithDescription("Total number of extensions skipped because they could not be resolved"),
		metric.WithUnit("{extension}"),
	)

	m.ArtifactsWrittenTotal, _ = meter.Int64Counter(
		"tlsbox.artifacts.written.total",
		metric.WithDescription("Total number of key and certificate files written"),
		metric.WithUnit("{file}"),
	)

	m.RequestsTotal, _ = meter.Int64Counter(
		"tlsbox.http.requests.total",
		metric.WithDescription("Total number of HTTP requests served"),
		metric.WithUnit("{request}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"tlsbox.http.request.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("ms"),
	)

	m.ActiveRequests, _ = meter.Int64UpDownCounter(
		"tlsbox.http.requests.active",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)

	return m
}
