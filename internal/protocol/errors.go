package protocol

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode categorizes every protocol-level failure the engine can emit
// or receive. The code determines propagation policy via Class.
type ErrorCode string

const (
	// Terminal codes. Never retried; during a match they forfeit the
	// offending participant's side immediately.

	// CodeMalformedEnvelope indicates missing/ill-typed envelope fields or
	// an unrecognized message type.
	CodeMalformedEnvelope ErrorCode = "INVALID_MESSAGE_FORMAT"
	// CodeVersionMismatch indicates the peer speaks a different protocol version.
	CodeVersionMismatch ErrorCode = "PROTOCOL_VERSION_MISMATCH"
	// CodeAuthTokenInvalid indicates the auth token is absent or does not resolve.
	CodeAuthTokenInvalid ErrorCode = "AUTH_TOKEN_INVALID"
	// CodeUnknownPeer indicates the sender is not a registered participant.
	CodeUnknownPeer ErrorCode = "UNKNOWN_PEER"
	// CodeFixtureNotFound indicates a report or query named a fixture that
	// was never scheduled.
	CodeFixtureNotFound ErrorCode = "FIXTURE_NOT_FOUND"
	// CodeInvalidChoice indicates a declared value outside the accepted set.
	CodeInvalidChoice ErrorCode = "INVALID_CHOICE"
	// CodeConversationMismatch indicates a response correlated to the wrong exchange.
	CodeConversationMismatch ErrorCode = "CONVERSATION_ID_MISMATCH"
	// CodeDuplicateRegistration indicates the participant name is already taken.
	CodeDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"
	// CodeEndpointUnreachable indicates the peer's contact endpoint cannot
	// be resolved at all (distinct from transient unavailability).
	CodeEndpointUnreachable ErrorCode = "ENDPOINT_UNREACHABLE"

	// Retryable codes. Retried with backoff up to the configured attempt
	// budget; exhaustion converts them into terminal failures upward.

	// CodeInvalidState indicates the operation is not valid for the peer's
	// current state (often resolves itself as state advances).
	CodeInvalidState ErrorCode = "INVALID_STATE"
	// CodePeerUnavailable indicates the peer is temporarily unreachable.
	CodePeerUnavailable ErrorCode = "PEER_UNAVAILABLE"
	// CodeRoundNotActive indicates a round-scoped operation arrived outside
	// its round window.
	CodeRoundNotActive ErrorCode = "ROUND_NOT_ACTIVE"
	// CodeRateLimited indicates the peer asked us to slow down.
	CodeRateLimited ErrorCode = "RATE_LIMITED"
	// CodePeerInternalError indicates the peer reported an internal fault.
	CodePeerInternalError ErrorCode = "PEER_INTERNAL_ERROR"
	// CodePeerServiceUnavailable indicates the peer's service is down.
	CodePeerServiceUnavailable ErrorCode = "PEER_SERVICE_UNAVAILABLE"
	// CodeBreakerOpen indicates the local circuit breaker refused the call
	// without attempting the wire.
	CodeBreakerOpen ErrorCode = "CIRCUIT_BREAKER_OPEN"

	// Timeout codes. A category of their own: never retried at the
	// deadline level, always forfeiting during a match.

	// CodeAckTimeout indicates a participant failed to acknowledge an
	// invite before its deadline.
	CodeAckTimeout ErrorCode = "ACK_TIMEOUT"
	// CodeDecisionTimeout indicates a participant failed to submit its
	// declared value before its deadline.
	CodeDecisionTimeout ErrorCode = "DECISION_TIMEOUT"
)

// Class is the propagation policy attached to an error code.
type Class int

const (
	// ClassTerminal errors are never retried.
	ClassTerminal Class = iota + 1
	// ClassRetryable errors are retried with bounded backoff.
	ClassRetryable
	// ClassTimeout errors come from deadline expiry and always forfeit.
	ClassTimeout
)

func (c Class) String() string {
	switch c {
	case ClassTerminal:
		return "terminal"
	case ClassRetryable:
		return "retryable"
	case ClassTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

var errorClasses = map[ErrorCode]Class{
	CodeMalformedEnvelope:      ClassTerminal,
	CodeVersionMismatch:        ClassTerminal,
	CodeAuthTokenInvalid:       ClassTerminal,
	CodeUnknownPeer:            ClassTerminal,
	CodeFixtureNotFound:        ClassTerminal,
	CodeInvalidChoice:          ClassTerminal,
	CodeConversationMismatch:   ClassTerminal,
	CodeDuplicateRegistration:  ClassTerminal,
	CodeEndpointUnreachable:    ClassTerminal,
	CodeInvalidState:           ClassRetryable,
	CodePeerUnavailable:        ClassRetryable,
	CodeRoundNotActive:         ClassRetryable,
	CodeRateLimited:            ClassRetryable,
	CodePeerInternalError:      ClassRetryable,
	CodePeerServiceUnavailable: ClassRetryable,
	CodeBreakerOpen:            ClassRetryable,
	CodeAckTimeout:             ClassTimeout,
	CodeDecisionTimeout:        ClassTimeout,
}

// Classify returns the propagation policy for a code. Unknown codes are
// treated as terminal - the conservative choice for anything unrecognized.
func (c ErrorCode) Class() Class {
	if cl, ok := errorClasses[c]; ok {
		return cl
	}
	return ClassTerminal
}

// Error is a protocol failure with a classified code and optional
// correlation fields for diagnostics.
type Error struct {
	Code           ErrorCode
	Message        string
	FixtureID      string
	ConversationID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.FixtureID != "" && e.ConversationID != "":
		return fmt.Sprintf("%s: %s (fixture=%s, conversation=%s)", e.Code, e.Message, e.FixtureID, e.ConversationID)
	case e.FixtureID != "":
		return fmt.Sprintf("%s: %s (fixture=%s)", e.Code, e.Message, e.FixtureID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// NewError creates a protocol error with the given code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithFixture attaches fixture correlation to the error.
func (e *Error) WithFixture(fixtureID string) *Error {
	e.FixtureID = fixtureID
	return e
}

// WithConversation attaches conversation correlation to the error.
func (e *Error) WithConversation(conversationID string) *Error {
	e.ConversationID = conversationID
	return e
}

// CodeOf extracts the error code from err, unwrapping as needed.
// Non-protocol errors map to CodePeerInternalError so transport faults
// default to the retryable path.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodePeerInternalError
}

// ClassOf returns the propagation class of err.
// Context deadline expiry is a timeout by definition, whatever wrapped it.
func ClassOf(err error) Class {
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return CodeOf(err).Class()
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	return ClassOf(err) == ClassRetryable
}

// IsTerminal reports whether err is terminal (never retried).
func IsTerminal(err error) bool {
	return ClassOf(err) == ClassTerminal
}

// IsTimeout reports whether err comes from deadline expiry.
func IsTimeout(err error) bool {
	return ClassOf(err) == ClassTimeout
}
