package services

import (
	"errors"
	"fmt"
)

// Status tags the outcome of a provider operation
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusTransportError
	StatusRateLimited
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusTransportError:
		return "transport_error"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// ErrNoData is reported by Result.Err for a NotFound result
var ErrNoData = errors.New("no data returned by provider")

// Result is the outcome of a provider operation. Every status other than
// StatusFound carries the zero value of T, which callers treat as empty.
type Result[T any] struct {
	status Status
	value  T
	detail string
	err    error
}

// Found wraps a successfully parsed record
func Found[T any](v T) Result[T] {
	return Result[T]{status: StatusFound, value: v}
}

// NotFound reports that the expected key was absent from the upstream body
func NotFound[T any](detail string) Result[T] {
	return Result[T]{status: StatusNotFound, detail: detail}
}

// TransportFailure reports a network, HTTP or decoding failure
func TransportFailure[T any](err error) Result[T] {
	return Result[T]{status: StatusTransportError, err: err, detail: err.Error()}
}

// RateLimited reports an upstream throttle
func RateLimited[T any](err *RateLimitError) Result[T] {
	return Result[T]{status: StatusRateLimited, err: err, detail: err.Error()}
}

// Status returns the outcome tag
func (r Result[T]) Status() Status { return r.status }

// OK reports whether a record was found
func (r Result[T]) OK() bool { return r.status == StatusFound }

// Value returns the record, or the zero value for any miss
func (r Result[T]) Value() T { return r.value }

// Detail returns diagnostic text for a miss
func (r Result[T]) Detail() string { return r.detail }

// Err converts a miss into an error. It returns nil for a found record and
// the underlying *RateLimitError for a throttled one.
func (r Result[T]) Err() error {
	switch r.status {
	case StatusFound:
		return nil
	case StatusNotFound:
		if r.detail != "" {
			return fmt.Errorf("%w: %s", ErrNoData, r.detail)
		}
		return ErrNoData
	default:
		return r.err
	}
}

// resultFromError classifies an outbound call error
func resultFromError[T any](err error) Result[T] {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return RateLimited[T](rle)
	}
	if IsRateLimited(err) {
		return RateLimited[T](&RateLimitError{Message: err.Error()})
	}
	return TransportFailure[T](err)
}
