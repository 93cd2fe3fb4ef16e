package httpconn

import "fmt"

// ErrorCode identifies a stable, contiguous namespace of HTTP connection
// lifecycle errors. Numeric values are not part of any wire protocol; they
// exist so that operators and callers can match on a stable code across log
// lines and metrics rather than on error string text.
type ErrorCode int

// The HTTP error namespace. Values are stable within a major version of this
// module.
const (
	_ ErrorCode = iota + httpErrorNamespaceBase

	// CodeInvalidHeaderField indicates a malformed or disallowed header.
	CodeInvalidHeaderField
	// CodeInvalidMethod indicates a malformed or disallowed request method.
	CodeInvalidMethod
	// CodeInvalidPath indicates a malformed request path.
	CodeInvalidPath
	// CodeConnectionClosed indicates the connection has been closed, usually
	// because a new accept arrived during server shutdown.
	CodeConnectionClosed
	// CodeSwitchedProtocols indicates the connection switched to a protocol
	// this library does not model further (e.g. WebSocket).
	CodeSwitchedProtocols
	// CodeUnsupportedProtocol indicates a negotiated version with no
	// registered Variant constructor (see variantRegistry.construct in
	// protocol.go), or a proxy connect, which Connect does not support.
	CodeUnsupportedProtocol
	// CodeReactionRequired indicates a required user callback failed to take
	// an expected action (e.g. configuring a just-accepted connection).
	CodeReactionRequired
	// CodeCallbackFailure indicates a user callback returned or reported
	// failure.
	CodeCallbackFailure
	// CodeServerClosed indicates an operation was attempted against a server
	// that has already begun or completed shutdown.
	CodeServerClosed
	// CodeProtocolError indicates a generic protocol-handler-reported error.
	CodeProtocolError
	// CodeStreamClosed indicates an operation on an already-closed stream.
	CodeStreamClosed
	// CodeInvalidFrameSize indicates a protocol handler reported a frame size
	// outside of the negotiated limits.
	CodeInvalidFrameSize
	// CodeConnectionManagerShutdown indicates the connection-manager
	// collaborator (out of scope here) is tearing down.
	CodeConnectionManagerShutdown
	// CodeWebSocketUpgradeFailed indicates a WebSocket upgrade (out of scope
	// here) failed.
	CodeWebSocketUpgradeFailed

	// CodeInvalidArgument and CodeInvalidState are argument errors, returned
	// synchronously from entry points.
	CodeInvalidArgument
	CodeInvalidState

	// CodeUnknown is used to synthesize a non-zero error when a callback
	// reports a zero error code in a context that requires failure (see
	// shutdown callback handling in client.go).
	CodeUnknown
)

// httpErrorNamespaceBase offsets this package's error codes into a range that
// does not collide with a hypothetical sibling error-code registry (e.g. one
// reserved for a DNS or TLS collaborator). The exact base is
// implementation-defined; only stability across releases matters.
const httpErrorNamespaceBase = 0x0700

// Error is the error type this package returns for its own validation and
// lifecycle failures. Errors from the transport itself (a failed dial in
// Connect, a failed listener close in Server.Release) are returned as the
// transport reported them. Error carries a stable ErrorCode alongside the
// operation name so that callers can match on Code, either directly or with
// errors.Is against an *Error holding the same code, or print Error() for
// logs.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("httpconn: %s: %s (code %d): %v", e.Op, e.codeName(), e.Code, e.Err)
	}
	return fmt.Sprintf("httpconn: %s: %s (code %d)", e.Op, e.codeName(), e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, &Error{Code: CodeX}) match any *Error with the same
// code, whatever its Op and wrapped Err.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

func newError(op string, code ErrorCode, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

// codeName renders a short, stable name for the code for log lines. It does
// not need to be exhaustive in the same order as the const block; it exists
// purely for readability.
func (e *Error) codeName() string {
	switch e.Code {
	case CodeInvalidHeaderField:
		return "invalid-header-field"
	case CodeInvalidMethod:
		return "invalid-method"
	case CodeInvalidPath:
		return "invalid-path"
	case CodeConnectionClosed:
		return "connection-closed"
	case CodeSwitchedProtocols:
		return "switched-protocols"
	case CodeUnsupportedProtocol:
		return "unsupported-protocol"
	case CodeReactionRequired:
		return "reaction-required"
	case CodeCallbackFailure:
		return "callback-failure"
	case CodeServerClosed:
		return "server-closed"
	case CodeProtocolError:
		return "protocol-error"
	case CodeStreamClosed:
		return "stream-closed"
	case CodeInvalidFrameSize:
		return "invalid-frame-size"
	case CodeConnectionManagerShutdown:
		return "connection-manager-shutdown"
	case CodeWebSocketUpgradeFailed:
		return "websocket-upgrade-failed"
	case CodeInvalidArgument:
		return "invalid-argument"
	case CodeInvalidState:
		return "invalid-state"
	case CodeUnknown:
		return "unknown"
	default:
		return "unspecified"
	}
}

// errUnknownNonZero synthesizes a non-zero error for a shutdown callback that
// reported success where failure was expected to be reported.
func errUnknownNonZero() error {
	return newError("shutdown", CodeUnknown, nil)
}
