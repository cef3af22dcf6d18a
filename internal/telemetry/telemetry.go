// Package telemetry wires process logging and OpenTelemetry metrics for the
// server binary. Metrics are exported periodically to a rotated local file so
// they survive restarts without requiring a collector.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "mentor-gateway"

// InitLogging routes the standard logger to both stderr and a rotated file
// under logDir. The returned closer flushes the rotation handle.
func InitLogging(logDir string) (io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: create log directory: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "server.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	return rotated, nil
}

// Metrics holds the instruments the gateway and HTTP layer report into.
// It satisfies the gateway's Recorder contract.
type Metrics struct {
	attempts    metric.Int64Counter
	exhaustions metric.Int64Counter
	requests    metric.Int64Counter
	latency     metric.Float64Histogram
}

// Init builds the meter provider with a periodic file exporter and returns
// the instrument set plus a shutdown func.
func Init(ctx context.Context, logDir string) (*Metrics, func(), error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("telemetry: create log directory: %w", err)
	}
	metricsFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "metrics.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	exporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(metricsFile),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(10*time.Second),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(ctx); err != nil {
			log.Printf("telemetry: shutdown meter provider: %v", err)
		}
		if err := metricsFile.Close(); err != nil {
			log.Printf("telemetry: close metrics file: %v", err)
		}
	}
	return m, shutdown, nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	if m.attempts, err = meter.Int64Counter("gateway.attempts",
		metric.WithDescription("credential attempts by outcome")); err != nil {
		return nil, fmt.Errorf("telemetry: create attempts counter: %w", err)
	}
	if m.exhaustions, err = meter.Int64Counter("gateway.exhaustions",
		metric.WithDescription("requests that failed on every credential")); err != nil {
		return nil, fmt.Errorf("telemetry: create exhaustions counter: %w", err)
	}
	if m.requests, err = meter.Int64Counter("http.requests",
		metric.WithDescription("handled requests by action and status")); err != nil {
		return nil, fmt.Errorf("telemetry: create requests counter: %w", err)
	}
	if m.latency, err = meter.Float64Histogram("http.request.duration",
		metric.WithDescription("request latency in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("telemetry: create latency histogram: %w", err)
	}
	return &m, nil
}

// Attempt records one credential attempt. The key identity is carried only
// as its last four characters.
func (m *Metrics) Attempt(last4 string, ok bool) {
	m.attempts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("key", "..."+last4),
		attribute.Bool("ok", ok),
	))
}

// Exhausted records one full-pool failure.
func (m *Metrics) Exhausted() {
	m.exhaustions.Add(context.Background(), 1)
}

// Request records one handled HTTP request.
func (m *Metrics) Request(action string, status int, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.Int("status", status),
	)
	m.requests.Add(context.Background(), 1, attrs)
	m.latency.Record(context.Background(), d.Seconds(), attrs)
}
