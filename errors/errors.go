package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrEmptyWords   = fmt.Errorf("no words have been found")
	ErrInvalidLevel = fmt.Errorf("invalid log level")

	// Handshake
	ErrAuthRejected = fmt.Errorf("credential rejected")

	// Inbound chat
	ErrPermissionDenied    = fmt.Errorf("identity is not a participant of the conversation")
	ErrInvalidPayload      = fmt.Errorf("invalid payload")
	ErrMalformedEnvelope   = fmt.Errorf("malformed envelope")
	ErrRateLimited         = fmt.Errorf("too many messages")
	ErrInvalidParticipants = fmt.Errorf("a conversation needs one user and one employer")

	// Store
	ErrPersistence          = fmt.Errorf("persistence failure")
	ErrConversationNotFound = fmt.Errorf("conversation not found")

	// Delivery
	ErrDelivery         = fmt.Errorf("delivery failure")
	ErrQueueOverflow    = fmt.Errorf("%w: outbound queue overflow", ErrDelivery)
	ErrConnectionClosed = fmt.Errorf("%w: connection closed", ErrDelivery)

	// Client
	ErrNotConnected = fmt.Errorf("client is not connected")
)

// Is is errors.Is from the standard library, re-exported so callers
// importing this package don't need an alias.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// MapToHTTPStatus translates a domain error into the status returned by the REST layer.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrAuthRejected):
		return http.StatusUnauthorized
	case Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case Is(err, ErrConversationNotFound):
		return http.StatusNotFound
	case Is(err, ErrInvalidPayload), Is(err, ErrInvalidParticipants), Is(err, ErrMalformedEnvelope):
		return http.StatusBadRequest
	case Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case Is(err, ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromCode is the inverse of Code, used by clients to rebuild a sentinel
// from an error envelope or an error response body.
func FromCode(code string) error {
	switch code {
	case "permission_denied":
		return ErrPermissionDenied
	case "persistence_failure":
		return ErrPersistence
	case "invalid_payload":
		return ErrInvalidPayload
	case "conversation_not_found":
		return ErrConversationNotFound
	case "rate_limited":
		return ErrRateLimited
	case "malformed_envelope":
		return ErrMalformedEnvelope
	case "unauthorized":
		return ErrAuthRejected
	default:
		return fmt.Errorf("unexpected error code %q", code)
	}
}

// Code is the short identifier carried by error envelopes on the wire.
func Code(err error) string {
	switch {
	case Is(err, ErrAuthRejected):
		return "unauthorized"
	case Is(err, ErrPermissionDenied):
		return "permission_denied"
	case Is(err, ErrPersistence):
		return "persistence_failure"
	case Is(err, ErrInvalidPayload), Is(err, ErrInvalidParticipants):
		return "invalid_payload"
	case Is(err, ErrConversationNotFound):
		return "conversation_not_found"
	case Is(err, ErrRateLimited):
		return "rate_limited"
	case Is(err, ErrMalformedEnvelope):
		return "malformed_envelope"
	default:
		return "internal"
	}
}
