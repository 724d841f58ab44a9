package apierror_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openkcm/session-client/pkg/apierror"
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestFromResponse(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://api.example.com/orders", nil)
	traceTime := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	tests := []struct {
		name        string
		resp        *http.Response
		wantCode    apierror.Code
		wantAuth    bool
		wantMessage string
		wantMeta    apierror.Meta
	}{
		{
			name:        "401 without body",
			resp:        response(http.StatusUnauthorized, ""),
			wantCode:    apierror.CodeUnauthorized,
			wantAuth:    true,
			wantMessage: "",
		},
		{
			name:        "Token expired entry on 403",
			resp:        response(http.StatusForbidden, `{"success":false,"message":"expired","errors":[{"code":"TOKEN_EXPIRED"}]}`),
			wantCode:    apierror.CodeTokenExpired,
			wantAuth:    true,
			wantMessage: "expired",
		},
		{
			name:        "Failure envelope keeps tracing metadata",
			resp:        response(http.StatusUnprocessableEntity, `{"success":false,"errors":[{"code":"NAME_REQUIRED","message":"name is required","field":"name"}],"meta":{"traceId":"trace-1","requestId":"req-1","timestamp":"2026-03-04T05:06:07Z"}}`),
			wantCode:    "NAME_REQUIRED",
			wantAuth:    false,
			wantMessage: "name is required",
			wantMeta:    apierror.Meta{TraceID: "trace-1", RequestID: "req-1", Timestamp: traceTime},
		},
		{
			name:        "Plain text body",
			resp:        response(http.StatusNotFound, "no such order\n"),
			wantCode:    apierror.CodeNotFound,
			wantMessage: "no such order",
		},
		{
			name:        "Unknown status",
			resp:        response(418, `{"success":false,"message":"teapot"}`),
			wantCode:    apierror.CodeUnknown,
			wantMessage: "teapot",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apierror.FromResponse(tt.resp, req)

			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantAuth, got.AuthFailure)
			assert.Equal(t, tt.wantMessage, got.Message)
			assert.Equal(t, tt.resp.StatusCode, got.HTTPStatus)
			assert.Same(t, req, got.Request)
			assert.False(t, got.Meta.Timestamp.IsZero(), "a timestamp is always present")
			if tt.wantMeta != (apierror.Meta{}) {
				assert.Equal(t, tt.wantMeta.TraceID, got.Meta.TraceID)
				assert.Equal(t, tt.wantMeta.RequestID, got.Meta.RequestID)
				assert.True(t, tt.wantMeta.Timestamp.Equal(got.Meta.Timestamp))
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		first := apierror.FromResponse(response(http.StatusUnauthorized, ""), nil)

		assert.Same(t, first, apierror.Normalize(first))
		assert.Same(t, first, apierror.Normalize(apierror.Normalize(first)))
		assert.Same(t, first, apierror.Normalize(fmt.Errorf("wrapped: %w", first)))
	})

	t.Run("Transport error", func(t *testing.T) {
		cause := errors.New("connection refused")
		got := apierror.Normalize(cause)

		assert.Equal(t, apierror.CodeUnknown, got.Code)
		assert.Zero(t, got.HTTPStatus)
		assert.False(t, got.AuthFailure)
		assert.ErrorIs(t, got, cause)
		assert.Equal(t, "UNKNOWN_ERROR: connection refused", got.Error())
	})

	t.Run("Nil", func(t *testing.T) {
		assert.Nil(t, apierror.Normalize(nil))
	})
}

func TestCodeForStatus(t *testing.T) {
	assert.Equal(t, apierror.CodeValidation, apierror.CodeForStatus(http.StatusUnprocessableEntity))
	assert.Equal(t, apierror.CodeInternal, apierror.CodeForStatus(http.StatusInternalServerError))
	assert.Equal(t, apierror.CodeUnknown, apierror.CodeForStatus(0))
	assert.Equal(t, apierror.CodeUnknown, apierror.CodeForStatus(299))
}

func TestEnvelope_DecodeData(t *testing.T) {
	env := apierror.Envelope{Success: true, Data: []byte(`{"id":"order-1"}`)}

	var out struct {
		ID string `json:"id"`
	}
	assert.NoError(t, env.DecodeData(&out))
	assert.Equal(t, "order-1", out.ID)
	assert.False(t, env.IsFailure())
}
