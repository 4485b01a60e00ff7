package domain

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Pre-flight failures. Any of these aborts the whole job before an item is touched.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrEmptyBatch        = errors.New("no images to translate")
)

// Per-item failures. They are converted into an error result for that item only.
var (
	ErrDecode    = errors.New("image decode failed")
	ErrTransport = errors.New("transport failure")
	ErrAuth      = errors.New("credential rejected")
	ErrProtocol  = errors.New("unparseable provider response")
)

// ErrorKind returns a short, stable label for err suitable for logs, metric
// labels and result details.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrEmptyBatch):
		return "empty_batch"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
