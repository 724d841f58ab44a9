package pipeline

import (
	"context"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/openkcm/session-client/pkg/pipeline"

type instruments struct {
	replays metric.Int64Counter
	logouts metric.Int64Counter
}

func newInstruments(ctx context.Context, meter metric.Meter) (*instruments, error) {
	replays, err := meter.Int64Counter(
		"session_client.replay.count",
		metric.WithDescription("Requests replayed after a refresh"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, oops.In("Pipeline").
			WithContext(ctx).
			Wrapf(err, "creating replay.count meter")
	}

	logouts, err := meter.Int64Counter(
		"session_client.logout.count",
		metric.WithDescription("Sessions ended by the logout cascade"),
		metric.WithUnit("session"),
	)
	if err != nil {
		return nil, oops.In("Pipeline").
			WithContext(ctx).
			Wrapf(err, "creating logout.count meter")
	}

	return &instruments{replays: replays, logouts: logouts}, nil
}
