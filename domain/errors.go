package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode"
)

// ErrConcurrencyConflict indicates that the underlying storage rejected an
// update because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrNotFound is returned by stores when a project does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation marks malformed input. Errors wrapping it are never retried.
var ErrValidation = errors.New("validation failed")

// ValidationError formats a message wrapping ErrValidation.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrorKind buckets sync failures.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "miro_unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network_error"
	KindAPI         ErrorKind = "miro_api_error"
	KindValidation  ErrorKind = "validation_error"
	KindUnknown     ErrorKind = "unknown"
)

// ClassifiedError is a classified sync failure.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *ClassifiedError) Retryable() bool {
	return e.Kind != KindValidation
}

// unavailableError is implemented by board errors signalling that no board
// surface exists in this process.
type unavailableError interface {
	error
	Unavailable() bool
}

// statusError is implemented by board API errors carrying an HTTP status.
type statusError interface {
	error
	HTTPStatus() int
}

// Classify buckets err into an ErrorKind. Typed errors are checked first, then
// the message is matched against keyword signatures.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var se *ClassifiedError
	if errors.As(err, &se) {
		return se
	}
	var ue unavailableError
	if errors.As(err, &ue) && ue.Unavailable() {
		return &ClassifiedError{Kind: KindUnavailable, Err: err}
	}
	if errors.Is(err, ErrValidation) {
		return &ClassifiedError{Kind: KindValidation, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Kind: KindTimeout, Err: err}
	}
	var stErr statusError
	if errors.As(err, &stErr) {
		switch stErr.HTTPStatus() {
		case 400, 422:
			return &ClassifiedError{Kind: KindValidation, Err: err}
		case 408, 504:
			return &ClassifiedError{Kind: KindTimeout, Err: err}
		default:
			return &ClassifiedError{Kind: KindAPI, Err: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &ClassifiedError{Kind: KindTimeout, Err: err}
		}
		return &ClassifiedError{Kind: KindNetwork, Err: err}
	}
	return &ClassifiedError{Kind: classifyMessage(err.Error()), Err: err}
}

// keywordSignatures are checked in order. Single-word keywords match whole
// words only; phrases match as substrings.
var keywordSignatures = []struct {
	kind     ErrorKind
	keywords []string
}{
	{KindUnavailable, []string{"miro is not defined", "board unavailable", "sdk not available"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindNetwork, []string{"network", "connection refused", "connection reset", "no such host", "failed to fetch", "eof"}},
	{KindValidation, []string{"invalid", "validation", "required", "malformed"}},
	{KindAPI, []string{"api", "rate limit", "too many requests", "status 4", "status 5"}},
}

func classifyMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(msg, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	for _, sig := range keywordSignatures {
		for _, kw := range sig.keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(msg, kw) {
					return sig.kind
				}
				continue
			}
			if _, ok := words[kw]; ok {
				return sig.kind
			}
		}
	}
	return KindUnknown
}
