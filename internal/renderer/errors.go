package renderer

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMissingURL is returned for requests without a URL. It fires before
	// any tab is acquired or touched.
	ErrMissingURL = errors.New("renderer: url is required")

	// ErrInvalidCookies is returned when the cookie payload cannot be
	// interpreted as a set of name/value pairs.
	ErrInvalidCookies = errors.New("renderer: cookies could not be parsed as name/value pairs")

	// ErrRenderTimeout is returned when signal-ready mode does not observe
	// the ready signal within the configured render timeout.
	ErrRenderTimeout = errors.New("renderer: ready signal not observed before timeout")
)

// LoadingFailedError reports that the top-level navigation request failed to
// load. Failures of subresource requests never produce this error.
type LoadingFailedError struct {
	RequestID string
	Reason    string
}

func (e *LoadingFailedError) Error() string {
	return fmt.Sprintf("renderer: navigation request %s failed to load: %s", e.RequestID, e.Reason)
}

// ProtocolError wraps a failed DevTools operation.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("renderer: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrorKind classifies an error from Render into the stable kind strings
// persisted with jobs and returned by the HTTP API.
func ErrorKind(err error) string {
	var loadErr *LoadingFailedError
	var protoErr *ProtocolError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingURL):
		return "missing_url"
	case errors.Is(err, ErrInvalidCookies):
		return "invalid_cookies"
	case errors.Is(err, ErrRenderTimeout):
		return "render_timeout"
	case errors.As(err, &loadErr):
		return "loading_failed"
	case errors.As(err, &protoErr):
		return "protocol_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
