package apierror

import (
	"encoding/json"
	"time"
)

// Envelope is the standard response wrapper of the backend API.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Errors  []Entry         `json:"errors"`
	Meta    *Meta           `json:"meta,omitempty"`
}

// Entry is one item of the envelope errors list.
type Entry struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// Meta carries tracing metadata of a response.
type Meta struct {
	TraceID   string    `json:"traceId,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// IsFailure reports whether the envelope is already a normalized failure:
// success is false and an errors list is present.
func (e Envelope) IsFailure() bool {
	return !e.Success && e.Errors != nil
}

// DecodeData unmarshals the data member into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 || v == nil {
		return nil
	}

	return json.Unmarshal(e.Data, v)
}
