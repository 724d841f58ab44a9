package refresh

import (
	"context"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/openkcm/session-client/pkg/refresh"

const (
	resultSuccess   = "success"
	resultFailure   = "failure"
	resultStale     = "stale"
	resultNoSession = "no_refresh_token"
)

type instruments struct {
	count    metric.Int64Counter
	duration metric.Int64Histogram
}

func newInstruments(ctx context.Context, meter metric.Meter) (*instruments, error) {
	count, err := meter.Int64Counter(
		"session_client.refresh.count",
		metric.WithDescription("Completed refresh cycles"),
		metric.WithUnit("cycle"),
	)
	if err != nil {
		return nil, oops.In("Refresh Coordinator").
			WithContext(ctx).
			Wrapf(err, "creating refresh.count meter")
	}

	duration, err := meter.Int64Histogram(
		"session_client.refresh.duration",
		metric.WithDescription("Duration of the refresh endpoint call"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, oops.In("Refresh Coordinator").
			WithContext(ctx).
			Wrapf(err, "creating refresh.duration meter")
	}

	return &instruments{count: count, duration: duration}, nil
}

func (i *instruments) record(ctx context.Context, result string, started time.Time) {
	attrs := metric.WithAttributes(attribute.String("result", result))

	i.count.Add(ctx, 1, attrs)
	if !started.IsZero() {
		i.duration.Record(ctx, time.Since(started).Milliseconds(), attrs)
	}
}
