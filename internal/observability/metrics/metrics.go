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

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentEvents    metric.Int64Counter
	provisioningRuns metric.Int64Counter
	streamSessions   metric.Int64Counter
	webhookCalls     metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "streamgate"
	}
	meter := provider.Meter(name)

	paymentEvents, err := meter.Int64Counter("streamgate_payment_events_total")
	if err != nil {
		return nil, err
	}
	provisioningRuns, err := meter.Int64Counter("streamgate_provisioning_runs_total")
	if err != nil {
		return nil, err
	}
	streamSessions, err := meter.Int64Counter("streamgate_stream_sessions_total")
	if err != nil {
		return nil, err
	}
	webhookCalls, err := meter.Int64Counter("streamgate_webhook_calls_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("streamgate_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentEvents:    paymentEvents,
		provisioningRuns: provisioningRuns,
		streamSessions:   streamSessions,
		webhookCalls:     webhookCalls,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProvisioning counts workflow runs by the step they ended on.
func (m *Metrics) RecordProvisioning(ctx context.Context, step, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("step", strings.TrimSpace(step)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.provisioningRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStreamSession counts session transitions (issued, published, ended, rejected).
func (m *Metrics) RecordStreamSession(ctx context.Context, event string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(event)))
	m.streamSessions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookCall counts customer webhook deliveries.
func (m *Metrics) RecordWebhookCall(ctx context.Context, event, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(event)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"step":        {},
	"outcome":     {},
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
