package probe

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/statusprobe/packages/assertions"
	"github.com/abdul-hamid-achik/statusprobe/packages/http"
)

const (
	// RootMessage is the greeting the root endpoint must return
	RootMessage = "Hello World"
	// DefaultClientName is sent as client_name when creating a status check
	DefaultClientName = "Test Client for Backend Verification"
	// RequestIDHeader carries the run ID on every probe request
	RequestIDHeader = "X-Request-ID"
)

// StatusCheckRequest is the body of the create probe.
type StatusCheckRequest struct {
	ClientName string `json:"client_name"`
}

// Outcome describes what a probe saw. It is returned even when the probe
// fails, so reporters can show the request and response that failed.
type Outcome struct {
	Message    string
	Warning    bool
	Request    *http.Request
	Response   *http.Response
	Assertions []*assertions.Result
	Captures   map[string]any
}

var (
	// ErrProtocol is wrapped by every error caused by the response contents.
	ErrProtocol = errors.New("protocol error")

	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrInvalidJSON      = errors.New("response body is not JSON")
	ErrUnexpectedBody   = errors.New("unexpected response body")
)

// ResponseError is a probe failure caused by the response: wrong status,
// malformed or incomplete body.
type ResponseError struct {
	Reason     error
	Message    string
	StatusCode int
	Body       string
	// EchoBody asks reporters to print Body alongside Message.
	EchoBody bool
}

func (e *ResponseError) Error() string {
	return e.Message
}

func (e *ResponseError) Unwrap() []error {
	return []error{ErrProtocol, e.Reason}
}

func newResponseError(reason error, resp *http.Response, format string, args ...any) *ResponseError {
	return &ResponseError{
		Reason:     reason,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: resp.StatusCode,
		Body:       resp.BodyString(),
	}
}
