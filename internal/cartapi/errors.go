package cartapi

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Reason is a machine-readable rejection cause reported by the store.
type Reason string

const (
	ReasonInvalidCode       Reason = "invalid_code"
	ReasonExpired           Reason = "expired"
	ReasonBelowMinimum      Reason = "below_minimum"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonInvalidQuantity   Reason = "invalid_quantity"
	ReasonNotFound          Reason = "not_found"
	ReasonBadRequest        Reason = "bad_request"
	ReasonReadOnly          Reason = "read_only"
)

// Kind classifies a failed cart operation.
type Kind int

const (
	// KindNetwork means no response was received (connection error, timeout).
	KindNetwork Kind = iota + 1
	// KindRejected means the store refused the request as invalid.
	KindRejected
	// KindUnauthorized means the session expired and could not be refreshed.
	KindUnauthorized
	// KindServer means the store failed internally.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	case KindUnauthorized:
		return "unauthorized"
	case KindServer:
		return "server"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Messages shown when the store payload carries nothing better.
const (
	MessageNetwork      = "Unable to reach the bakery. Check your connection and try again."
	MessageUnauthorized = "Your session has expired. Please sign in again."
	MessageServer       = "Something went wrong on our side. Please try again."
)

// Error is the failure reported by every cart operation. Message is always
// human-readable and safe to show in a banner.
type Error struct {
	Kind    Kind
	Status  int
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected returns a validation failure with the given reason.
func Rejected(reason Reason, message string) *Error {
	return &Error{Kind: KindRejected, Reason: reason, Message: message}
}

// NetworkError wraps a transport failure.
func NetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: MessageNetwork, Err: err}
}

// Unauthorized wraps a failed session refresh.
func Unauthorized(err error) *Error {
	return &Error{Kind: KindUnauthorized, Status: 401, Message: MessageUnauthorized, Err: err}
}

// FromStatus classifies a non-2xx response. The payload message is kept for
// rejections and replaced with a generic one for server failures.
func FromStatus(status int, body ErrorBody) *Error {
	switch {
	case status == 401:
		return &Error{Kind: KindUnauthorized, Status: status, Message: MessageUnauthorized}
	case status >= 500:
		return &Error{Kind: KindServer, Status: status, Reason: body.Reason, Message: MessageServer}
	default:
		msg := body.Message
		if msg == "" {
			msg = fmt.Sprintf("Request was rejected (HTTP %d).", status)
		}
		reason := body.Reason
		if reason == "" {
			reason = ReasonBadRequest
		}
		return &Error{Kind: KindRejected, Status: status, Reason: reason, Message: msg}
	}
}

// AsError converts any error into an *Error so callers always receive the
// cart taxonomy.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NetworkError(err)
	}
	return &Error{Kind: KindServer, Message: MessageServer, Err: err}
}

// IsReason reports whether err is a rejection with the given reason.
func IsReason(err error, reason Reason) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRejected && e.Reason == reason
}
