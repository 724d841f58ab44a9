// Package apierror normalizes every failure of an API call into one error
// shape carrying a machine-readable code.
package apierror

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeTooManyRequests    Code = "TOO_MANY_REQUESTS"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeBadGateway         Code = "BAD_GATEWAY"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout     Code = "GATEWAY_TIMEOUT"
	CodeUnknown            Code = "UNKNOWN_ERROR"

	// CodeTokenExpired marks an auth failure regardless of the HTTP status.
	CodeTokenExpired Code = "TOKEN_EXPIRED"
)

var statusCodes = map[int]Code{
	http.StatusBadRequest:          CodeBadRequest,
	http.StatusUnauthorized:        CodeUnauthorized,
	http.StatusForbidden:           CodeForbidden,
	http.StatusNotFound:            CodeNotFound,
	http.StatusConflict:            CodeConflict,
	http.StatusUnprocessableEntity: CodeValidation,
	http.StatusTooManyRequests:     CodeTooManyRequests,
	http.StatusInternalServerError: CodeInternal,
	http.StatusBadGateway:          CodeBadGateway,
	http.StatusServiceUnavailable:  CodeServiceUnavailable,
	http.StatusGatewayTimeout:      CodeGatewayTimeout,
}

// CodeForStatus maps an HTTP status to a code. Absent and unknown statuses
// map to CodeUnknown.
func CodeForStatus(status int) Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}

	return CodeUnknown
}

// Error is the normalized form of a failed call. It is never modified after
// construction.
type Error struct {
	AuthFailure bool
	Code        Code
	HTTPStatus  int // zero when no response was received
	Message     string
	Errors      []Entry
	Meta        Meta
	Request     *http.Request // the request whose attempt failed

	cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether the error or one of its entries carries code.
func (e *Error) HasCode(code Code) bool {
	if e.Code == code {
		return true
	}
	for _, entry := range e.Errors {
		if entry.Code == code {
			return true
		}
	}

	return false
}

// Normalize returns err as an *Error. An error that already is one (anywhere
// in its chain) is returned unchanged; anything else becomes CodeUnknown
// without an HTTP status.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var normalized *Error
	if errors.As(err, &normalized) {
		return normalized
	}

	return &Error{
		Code:    CodeUnknown,
		Message: err.Error(),
		Meta:    Meta{Timestamp: time.Now().UTC()},
		cause:   err,
	}
}

// FromEnvelope builds an *Error from a response envelope. A failure envelope
// keeps its own errors and metadata.
func FromEnvelope(env Envelope, status int, req *http.Request) *Error {
	e := &Error{
		Code:       CodeForStatus(status),
		HTTPStatus: status,
		Message:    env.Message,
		Request:    req,
	}

	if env.IsFailure() {
		e.Errors = env.Errors
		if env.Meta != nil {
			e.Meta = *env.Meta
		}
		if len(env.Errors) > 0 && env.Errors[0].Code != "" {
			e.Code = env.Errors[0].Code
		}
	}

	if e.Meta.Timestamp.IsZero() {
		e.Meta.Timestamp = time.Now().UTC()
	}
	if e.Message == "" && len(e.Errors) > 0 {
		e.Message = e.Errors[0].Message
	}
	e.AuthFailure = status == http.StatusUnauthorized || e.HasCode(CodeTokenExpired)

	return e
}

// FromResponse reads and closes the body of a failed response and normalizes
// it. Bodies that are not an envelope keep their text as the message.
func FromResponse(resp *http.Response, req *http.Request) *Error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e := FromEnvelope(Envelope{}, resp.StatusCode, req)
		e.cause = fmt.Errorf("reading response body: %w", err)
		return e
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || (!env.IsFailure() && env.Message == "") {
		env = Envelope{Message: string(bytes.TrimSpace(body))}
	}

	return FromEnvelope(env, resp.StatusCode, req)
}
