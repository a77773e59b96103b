package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures for the retry controller
type ErrorKind int

const (
	ErrTransport ErrorKind = iota
	ErrRateLimited
	ErrParse
	ErrValidation
	ErrRetryLimit
	ErrRateLimitExceeded
	ErrFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransport:
		return "transport"
	case ErrRateLimited:
		return "rate_limited"
	case ErrParse:
		return "parse"
	case ErrValidation:
		return "validation"
	case ErrRetryLimit:
		return "retry_limit_exceeded"
	case ErrRateLimitExceeded:
		return "rate_limit_exceeded"
	case ErrFatal:
		return "fatal"
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// PipelineError carries an ErrorKind through wrapped error chains
type PipelineError struct {
	Kind       ErrorKind
	Op         string
	Err        error
	RetryAfter time.Duration
}

func (e *PipelineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost PipelineError in err's chain.
// Context cancellation is fatal; anything unclassified is a transport failure.
func KindOf(err error) ErrorKind {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrFatal
	}
	return ErrTransport
}

// retryAfterOf returns the provider-advised wait carried by err, if any
func retryAfterOf(err error) time.Duration {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.RetryAfter
	}
	return 0
}

func newError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

func parseError(op string, format string, args ...any) error {
	return newError(ErrParse, op, fmt.Errorf(format, args...))
}

func validationFailure(op string, reason string) error {
	return newError(ErrValidation, op, errors.New(reason))
}

func fatalError(op string, err error) error {
	return newError(ErrFatal, op, err)
}

func rateLimited(op string, err error, retryAfter time.Duration) error {
	return &PipelineError{Kind: ErrRateLimited, Op: op, Err: err, RetryAfter: retryAfter}
}

func transportError(op string, err error) error {
	return newError(ErrTransport, op, err)
}
