package errors

import "fmt"

// ParseError reports an unparseable payload.
func ParseError(cause error) EngineError {
	return Wrap(cause, CodeParseError, "Parse error", CategoryProtocol, SeverityError)
}

// InvalidRequest reports a structurally invalid envelope.
func InvalidRequest(reason string) EngineError {
	return New(CodeInvalidRequest, "Invalid request", CategoryProtocol, SeverityError).
		WithDetail(reason)
}

// MethodNotFound reports an unknown (or deliberately hidden) method.
func MethodNotFound(method string) EngineError {
	return Newf(CodeMethodNotFound, CategoryProtocol, SeverityError,
		"Method not found: %s", method)
}

// InvalidParams reports malformed parameters for a method.
func InvalidParams(method, reason string) EngineError {
	return Newf(CodeInvalidParams, CategoryValidation, SeverityError,
		"Invalid params for %s", method).WithDetail(reason)
}

// MissingParam reports an absent required parameter.
func MissingParam(method, param string) EngineError {
	return Newf(CodeInvalidParams, CategoryValidation, SeverityError,
		"Invalid params for %s: missing %s", method, param)
}

// Internal wraps an unexpected failure.
func Internal(operation string, cause error) EngineError {
	return Wrap(cause, CodeInternalError,
		fmt.Sprintf("Internal error in %s", operation), CategoryInternal, SeverityError)
}

// ServerNotInitialized rejects a method issued before the handshake completed.
func ServerNotInitialized(method string) EngineError {
	return Newf(CodeServerNotInitialized, CategoryProtocol, SeverityError,
		"Server not initialized: %s not allowed before the initialized notification", method)
}

// SessionNotFound reports an unknown or expired session ID.
func SessionNotFound(sessionID string) EngineError {
	return Newf(CodeSessionNotFound, CategoryNotFound, SeverityWarning,
		"Session not found: %s", sessionID)
}

// ResourceNotFound reports an unmatched resource URI. The URI travels both in
// the message and in the structured data so clients need not parse prose.
func ResourceNotFound(uri string) EngineError {
	return Newf(CodeResourceNotFound, CategoryNotFound, SeverityError,
		"Resource not found: %s", uri).
		WithData(map[string]string{"uri": uri})
}

// RequestCancelled marks a request that terminated through cooperative
// cancellation.
func RequestCancelled(requestID string) EngineError {
	return Newf(CodeRequestCancelled, CategoryCancelled, SeverityInfo,
		"Request cancelled").
		WithData(map[string]string{"requestId": requestID})
}

// StreamAlreadyOpen rejects a second concurrent stream for a session.
func StreamAlreadyOpen(sessionID string) EngineError {
	return Newf(CodeStreamAlreadyOpen, CategoryTransport, SeverityWarning,
		"Session %s already has an open event stream", sessionID)
}

// InvalidCursor reports an undecodable pagination cursor.
func InvalidCursor(cause error) EngineError {
	return Wrap(cause, CodeInvalidCursor, "Invalid pagination cursor",
		CategoryValidation, SeverityError)
}
