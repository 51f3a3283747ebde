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

// Metrics exposes application-level instruments for the billing core.
type Metrics struct {
	billingRecorded    metric.Int64Counter
	billingDuplicates  metric.Int64Counter
	importRows         metric.Int64Counter
	unlockChecks       metric.Int64Counter
	sessionsTracked    metric.Int64Counter
	settlementReplayed metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "kiosk"
	}
	meter := provider.Meter(name)

	billingRecorded, err := meter.Int64Counter("kiosk_billing_events_recorded_total")
	if err != nil {
		return nil, err
	}
	billingDuplicates, err := meter.Int64Counter("kiosk_billing_events_deduplicated_total")
	if err != nil {
		return nil, err
	}
	importRows, err := meter.Int64Counter("kiosk_import_rows_total")
	if err != nil {
		return nil, err
	}
	unlockChecks, err := meter.Int64Counter("kiosk_unlock_checks_total")
	if err != nil {
		return nil, err
	}
	sessionsTracked, err := meter.Int64Counter("kiosk_sessions_tracked_total")
	if err != nil {
		return nil, err
	}
	settlementReplayed, err := meter.Int64Counter("kiosk_settlement_replayed_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billingRecorded:    billingRecorded,
		billingDuplicates:  billingDuplicates,
		importRows:         importRows,
		unlockChecks:       unlockChecks,
		sessionsTracked:    sessionsTracked,
		settlementReplayed: settlementReplayed,
	}, nil
}

// RecordBillingEvent counts stored billing events by source.
func (m *Metrics) RecordBillingEvent(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.billingRecorded.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
	)...))
}

// RecordBillingDuplicate counts record() calls resolved to an existing event.
func (m *Metrics) RecordBillingDuplicate(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.billingDuplicates.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
	)...))
}

// RecordImportRow counts processed import rows by outcome.
func (m *Metrics) RecordImportRow(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.importRows.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

// RecordUnlockCheck counts paywall access checks by result.
func (m *Metrics) RecordUnlockCheck(ctx context.Context, granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.unlockChecks.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("result", result),
	)...))
}

// RecordSessionTracked counts visitor session track calls.
func (m *Metrics) RecordSessionTracked(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsTracked.Add(ctx, 1)
}

// RecordSettlementReplay counts events re-driven through settlement.
func (m *Metrics) RecordSettlementReplay(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.settlementReplayed.Add(ctx, count)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"source":  {},
	"outcome": {},
	"result":  {},
	"status":  {},
	"route":   {},
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
