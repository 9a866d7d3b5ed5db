package runner

import (
	"context"
	"errors"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/env"
	"github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/abdul-hamid-achik/statusprobe/packages/probe"
)

// ErrorKind classifies why a step did not pass.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindConfig
	KindNetwork
	KindProtocol
	KindValidationWarning
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindNetwork:
		return "NetworkError"
	case KindProtocol:
		return "ProtocolError"
	case KindValidationWarning:
		return "ValidationWarning"
	case KindUnexpected:
		return "UnexpectedError"
	}
	return "None"
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// StepError is the error a failed step reports.
type StepError struct {
	Kind    ErrorKind
	Step    string
	Message string
	Err     error
}

func (e *StepError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Response problems are protocol errors, transport
// problems are network errors, a missing or malformed backend URL is a config
// error and anything else is unexpected.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Kind
	}

	switch {
	case errors.Is(err, probe.ErrProtocol):
		return KindProtocol
	case errors.Is(err, env.ErrKeyNotFound), errors.Is(err, http.ErrInvalidURL):
		return KindConfig
	case errors.Is(err, context.Canceled):
		return KindUnexpected
	case http.IsNetworkError(err):
		return KindNetwork
	}
	return KindUnexpected
}
