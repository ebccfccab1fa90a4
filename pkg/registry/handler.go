package registry

import (
	"context"
	"encoding/json"

	"github.com/agentwire/agentwire/pkg/protocol"
)

// Emitter lets a handler push notifications to its session's event stream
// while the request is in flight. Emissions are fire-and-forget: with no
// stream open they are dropped, never queued.
type Emitter interface {
	// Log emits a notifications/message at the given severity. Delivery
	// is subject to the session's severity floor.
	Log(level protocol.LogLevel, data interface{})

	// Progress emits a notifications/progress tied to the in-flight
	// request.
	Progress(message string, progress, total float64)
}

// NopEmitter discards all emissions. Handlers invoked outside a session
// (tests, warm-up) receive it instead of nil.
type NopEmitter struct{}

func (NopEmitter) Log(protocol.LogLevel, interface{}) {}
func (NopEmitter) Progress(string, float64, float64)  {}

// ResourceRequest carries one resources/read invocation into a handler.
type ResourceRequest struct {
	// URI is the concrete URI the client asked for.
	URI string

	// Args holds template parameters extracted from the URI, keyed by
	// placeholder name. Empty for non-templated resources.
	Args map[string]string

	// Emit reaches the requesting session's event stream. Never nil.
	Emit Emitter
}

// ResourceHandler produces the contents for a resource read. Handlers are
// read-only by contract; the engine does not enforce this but never mutates
// shared state on their behalf.
type ResourceHandler func(ctx context.Context, req ResourceRequest) (*protocol.ResourceContents, error)

// ToolRequest carries one tools/call invocation into a handler.
type ToolRequest struct {
	// Name is the registered tool name.
	Name string

	// Arguments is the opaque client payload.
	Arguments json.RawMessage

	// Emit reaches the requesting session's event stream. Never nil.
	Emit Emitter
}

// ToolHandler executes a tool call. Long-running handlers must honor ctx
// cancellation at their own checkpoints; the engine signals intent but never
// force-terminates handler code.
type ToolHandler func(ctx context.Context, req ToolRequest) (*protocol.CallToolResult, error)

// EnabledFunc gates a tool's visibility per call. When it reports false the
// tool is treated as nonexistent, so probing clients cannot distinguish
// "disabled" from "never registered".
type EnabledFunc func(ctx context.Context) bool
