package errors

// JSON-RPC 2.0 standard error codes.
const (
	// CodeParseError indicates the payload was not valid JSON.
	CodeParseError int = -32700

	// CodeInvalidRequest indicates the payload was not a valid envelope.
	CodeInvalidRequest int = -32600

	// CodeMethodNotFound indicates the method does not exist or is hidden.
	CodeMethodNotFound int = -32601

	// CodeInvalidParams indicates malformed or missing parameters.
	CodeInvalidParams int = -32602

	// CodeInternalError indicates an unexpected failure inside the engine.
	CodeInternalError int = -32603
)

// Engine-defined error codes.
const (
	// CodeRequestCancelled reports that a request terminated because the
	// client asked for it to be cancelled. Clients use it to distinguish
	// "failed" from "intentionally stopped".
	CodeRequestCancelled int = -32800

	// Domain errors (-32000 to -32099).

	// CodeServerNotInitialized rejects any request other than initialize
	// or ping before the handshake has completed.
	CodeServerNotInitialized int = -32000

	// CodeSessionNotFound rejects traffic referencing an unknown or
	// expired session.
	CodeSessionNotFound int = -32001

	// CodeResourceNotFound reports that no registry entry matches the
	// requested URI.
	CodeResourceNotFound int = -32002

	// CodeStreamAlreadyOpen rejects a second concurrent event stream for
	// the same session.
	CodeStreamAlreadyOpen int = -32003

	// CodeInvalidCursor rejects an unparseable pagination cursor.
	CodeInvalidCursor int = -32004
)

// CodeInfo describes a registered error code.
type CodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

var codeRegistry = map[int]CodeInfo{
	CodeParseError:     {CodeParseError, "ParseError", "Invalid JSON was received", CategoryProtocol, SeverityError},
	CodeInvalidRequest: {CodeInvalidRequest, "InvalidRequest", "Invalid request envelope", CategoryProtocol, SeverityError},
	CodeMethodNotFound: {CodeMethodNotFound, "MethodNotFound", "Method does not exist", CategoryProtocol, SeverityError},
	CodeInvalidParams:  {CodeInvalidParams, "InvalidParams", "Invalid method parameters", CategoryValidation, SeverityError},
	CodeInternalError:  {CodeInternalError, "InternalError", "Internal engine error", CategoryInternal, SeverityError},

	CodeRequestCancelled:     {CodeRequestCancelled, "RequestCancelled", "Request was cancelled by the client", CategoryCancelled, SeverityInfo},
	CodeServerNotInitialized: {CodeServerNotInitialized, "ServerNotInitialized", "Session handshake has not completed", CategoryProtocol, SeverityError},
	CodeSessionNotFound:      {CodeSessionNotFound, "SessionNotFound", "Session unknown or expired", CategoryNotFound, SeverityWarning},
	CodeResourceNotFound:     {CodeResourceNotFound, "ResourceNotFound", "No resource matches the requested URI", CategoryNotFound, SeverityError},
	CodeStreamAlreadyOpen:    {CodeStreamAlreadyOpen, "StreamAlreadyOpen", "Session already holds an open event stream", CategoryTransport, SeverityWarning},
	CodeInvalidCursor:        {CodeInvalidCursor, "InvalidCursor", "Pagination cursor could not be decoded", CategoryValidation, SeverityError},
}

// InfoForCode returns registry information for a code.
func InfoForCode(code int) (CodeInfo, bool) {
	info, ok := codeRegistry[code]
	return info, ok
}

// NameForCode returns the registered name of a code, or "UnknownError".
func NameForCode(code int) string {
	if info, ok := codeRegistry[code]; ok {
		return info.Name
	}
	return "UnknownError"
}
