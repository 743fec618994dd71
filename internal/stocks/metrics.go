package stocks

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

const meterName = "pkt.systems/stockd/stocks"

type storeMetrics struct {
	operations metric.Int64Counter
	records    metric.Int64ObservableGauge
	logger     pslog.Logger
}

func newStoreMetrics(logger pslog.Logger) *storeMetrics {
	meter := otel.Meter(meterName)
	m := &storeMetrics{logger: logger}
	var err error

	m.operations, err = meter.Int64Counter(
		"stockd.store.operations",
		metric.WithDescription("Record store operations by result"),
	)
	logMetricInitError(logger, "stockd.store.operations", err)

	m.records, err = meter.Int64ObservableGauge(
		"stockd.store.records",
		metric.WithDescription("Records currently held by the store"),
	)
	logMetricInitError(logger, "stockd.store.records", err)
	return m
}

func (m *storeMetrics) registerStore(s *Store) metric.Registration {
	if m == nil || m.records == nil {
		return nil
	}
	meter := otel.Meter(meterName)
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.records, int64(s.Len()))
		return nil
	}, m.records)
	if err != nil {
		m.logger.Warn("telemetry.metric.callback_failed", "name", "stockd.store.records", "error", err)
		return nil
	}
	return reg
}

func (m *storeMetrics) record(ctx context.Context, op string, err error) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("stockd.store.operation", op),
		attribute.String("stockd.store.result", resultLabel(err)),
	))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
