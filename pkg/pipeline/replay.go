package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/apierror"
)

// ErrReplayRejected is returned when a replayed request fails authentication
// again. It wraps the *apierror.Error of the replay.
var ErrReplayRejected = errors.New("replayed request rejected")

type replayedKey struct{}

// Replayed reports whether req is a replay.
func Replayed(req *http.Request) bool {
	v, _ := req.Context().Value(replayedKey{}).(bool)
	return v
}

// Replayer re-issues a failed request once with a new access token.
type Replayer struct {
	execute func(*http.Request) (*http.Response, error)
	replays metric.Int64Counter
}

// NewReplayer returns a Replayer sending replays through execute. replays
// may be nil.
func NewReplayer(execute func(*http.Request) (*http.Response, error), replays metric.Int64Counter) *Replayer {
	return &Replayer{execute: execute, replays: replays}
}

// Replay clones req with a rewound body and accessToken as bearer and sends
// it. A replay that fails authentication again is terminal.
func (r *Replayer) Replay(req *http.Request, accessToken string) (*http.Response, error) {
	if Replayed(req) {
		return nil, fmt.Errorf("%w: %s %s was already replayed", ErrReplayRejected, req.Method, req.URL.Path)
	}

	ctx := context.WithValue(req.Context(), replayedKey{}, true)
	clone := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		clone.Body = body
	}
	setBearer(clone, accessToken)

	slogctx.Debug(ctx, "Replaying request", "method", req.Method, "path", req.URL.Path)

	resp, err := r.execute(clone)

	if r.replays != nil {
		r.replays.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", err == nil)))
	}

	var apiErr *apierror.Error
	if errors.As(err, &apiErr) && apiErr.AuthFailure {
		return nil, fmt.Errorf("%w: %w", ErrReplayRejected, apiErr)
	}

	return resp, err
}
