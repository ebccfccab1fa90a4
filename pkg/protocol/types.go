package protocol

import (
	"encoding/json"
	"time"
)

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo identifies this server in the initialize result.
type ServerInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// ClientCapabilities are the feature flags declared by the client during
// initialize. Unknown members are preserved so the negotiator can log them.
type ClientCapabilities struct {
	Roots    *RootsCapability           `json:"roots,omitempty"`
	Sampling map[string]interface{}     `json:"sampling,omitempty"`
	Extra    map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known members and keeps everything else in Extra.
func (c *ClientCapabilities) UnmarshalJSON(data []byte) error {
	type plain ClientCapabilities
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	delete(members, "roots")
	delete(members, "sampling")
	if len(members) > 0 {
		p.Extra = members
	}
	*c = ClientCapabilities(p)
	return nil
}

// RootsCapability is the client-side roots feature flag.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities are the feature flags this server declares back. The
// client treats absent features as unsupported.
type ServerCapabilities struct {
	Tools     *ToolsCapability       `json:"tools,omitempty"`
	Resources *ResourcesCapability   `json:"resources,omitempty"`
	Logging   map[string]interface{} `json:"logging,omitempty"`
}

// ToolsCapability advertises tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability advertises resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    *ClientCapabilities `json:"capabilities,omitempty"`
	ClientInfo      *ClientInfo         `json:"clientInfo,omitempty"`
}

// InitializeResult is the payload of the initialize response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// InitializedParams is the (empty) payload of notifications/initialized.
type InitializedParams struct{}

// PingParams carries an optional client timestamp echoed back in PingResult.
type PingParams struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// PingResult echoes the ping timestamp.
type PingResult struct {
	Timestamp int64 `json:"timestamp"`
}

// PaginationParams are the optional paging members of list requests.
type PaginationParams struct {
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// PaginationResult is embedded in list results that support paging.
type PaginationResult struct {
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore,omitempty"`
	TotalCount int    `json:"totalCount,omitempty"`
}

// Resource describes one registry entry as surfaced by resources/list.
type Resource struct {
	URI         string `json:"uri,omitempty"`
	URITemplate string `json:"uriTemplate,omitempty"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContents is the payload returned from resources/read. Text and
// Blob are mutually exclusive; Blob carries base64 data.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ListResourcesParams filters and pages resources/list.
type ListResourcesParams struct {
	Scheme string `json:"scheme,omitempty"`
	PaginationParams
}

// ListResourcesResult is the resources/list response payload.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
	PaginationResult
}

// ReadResourceParams selects the resource to read.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult is the resources/read response payload.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// Tool describes one callable tool as surfaced by tools/list.
type Tool struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListToolsParams pages tools/list.
type ListToolsParams struct {
	PaginationParams
}

// ListToolsResult is the tools/list response payload.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
	PaginationResult
}

// CallToolParams selects and parameterizes a tool invocation. Arguments are
// opaque to the engine.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the tools/call response payload. IsError marks a
// tool-level failure that is still a successful JSON-RPC response.
type CallToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ToolContent is one content block of a tool result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent builds a single-block text tool result.
func TextContent(text string) *CallToolResult {
	return &CallToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

// ErrorContent builds a tool result flagged as a tool-level failure.
func ErrorContent(text string) *CallToolResult {
	return &CallToolResult{Content: []ToolContent{{Type: "text", Text: text}}, IsError: true}
}

// CancelledParams is the payload of notifications/cancelled.
type CancelledParams struct {
	RequestID interface{} `json:"requestId"`
	Reason    string      `json:"reason,omitempty"`
}

// ProgressParams is the payload of notifications/progress. ProgressToken is
// the ID of the request the progress belongs to.
type ProgressParams struct {
	ProgressToken interface{} `json:"progressToken"`
	Message       string      `json:"message,omitempty"`
	Progress      float64     `json:"progress"`
	Total         float64     `json:"total,omitempty"`
}

// SetLogLevelParams is the payload of logging/setLevel.
type SetLogLevelParams struct {
	Level LogLevel `json:"level"`
}

// SetLogLevelResult acknowledges logging/setLevel.
type SetLogLevelResult struct{}

// LogMessageParams is the payload of notifications/message.
type LogMessageParams struct {
	Level  LogLevel        `json:"level"`
	Logger string          `json:"logger,omitempty"`
	Time   time.Time       `json:"time,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// LogLevel is a syslog-style severity attached to protocol log notifications.
type LogLevel string

const (
	LogLevelDebug     LogLevel = "debug"
	LogLevelInfo      LogLevel = "info"
	LogLevelNotice    LogLevel = "notice"
	LogLevelWarning   LogLevel = "warning"
	LogLevelError     LogLevel = "error"
	LogLevelCritical  LogLevel = "critical"
	LogLevelAlert     LogLevel = "alert"
	LogLevelEmergency LogLevel = "emergency"
)

var logLevelRank = map[LogLevel]int{
	LogLevelDebug:     0,
	LogLevelInfo:      1,
	LogLevelNotice:    2,
	LogLevelWarning:   3,
	LogLevelError:     4,
	LogLevelCritical:  5,
	LogLevelAlert:     6,
	LogLevelEmergency: 7,
}

// Valid reports whether l is one of the eight defined severities.
func (l LogLevel) Valid() bool {
	_, ok := logLevelRank[l]
	return ok
}

// Severity returns the numeric rank of l, with debug lowest. Unknown levels
// rank below debug so they are always filtered by any floor.
func (l LogLevel) Severity() int {
	if rank, ok := logLevelRank[l]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether l is at or above the given floor.
func (l LogLevel) AtLeast(floor LogLevel) bool {
	return l.Severity() >= floor.Severity()
}
