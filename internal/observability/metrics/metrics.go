package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes payform-level instruments.
type Metrics struct {
	transactionsCreated metric.Int64Counter
	paymentsCommitted   metric.Int64Counter
	webhooksRejected    metric.Int64Counter
	tokenRefresh        metric.Int64Counter
	statusChanges       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the payform instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "payforms"
	}
	meter := provider.Meter(name)

	transactionsCreated, err := meter.Int64Counter("payforms_transactions_created_total")
	if err != nil {
		return nil, err
	}
	paymentsCommitted, err := meter.Int64Counter("payforms_payments_committed_total")
	if err != nil {
		return nil, err
	}
	webhooksRejected, err := meter.Int64Counter("payforms_webhooks_rejected_total")
	if err != nil {
		return nil, err
	}
	tokenRefresh, err := meter.Int64Counter("payforms_token_refresh_total")
	if err != nil {
		return nil, err
	}
	statusChanges, err := meter.Int64Counter("payforms_status_changes_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transactionsCreated: transactionsCreated,
		paymentsCommitted:   paymentsCommitted,
		webhooksRejected:    webhooksRejected,
		tokenRefresh:        tokenRefresh,
		statusChanges:       statusChanges,
	}, nil
}

// NewNop returns instruments bound to a noop provider, for tests and tools.
func NewNop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordTransactionCreated counts createTransaction outcomes (ok, failed, timeout).
func (m *Metrics) RecordTransactionCreated(ctx context.Context, payformID, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("payform_id", strings.TrimSpace(payformID)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.transactionsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentCommitted counts commitPayment results by resulting status.
func (m *Metrics) RecordPaymentCommitted(ctx context.Context, payformID, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("payform_id", strings.TrimSpace(payformID)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.paymentsCommitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordWebhookRejected(ctx context.Context, payformID, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("payform_id", strings.TrimSpace(payformID)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.webhooksRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordTokenRefresh(ctx context.Context, payformID, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("payform_id", strings.TrimSpace(payformID)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.tokenRefresh.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordStatusChange(ctx context.Context, status, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.String("source", strings.TrimSpace(source)),
	)
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"payform_id":  {},
	"result":      {},
	"status":      {},
	"reason":      {},
	"source":      {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
