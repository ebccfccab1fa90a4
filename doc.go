// Package agentwire is a session-scoped JSON-RPC 2.0 protocol engine served
// over a single HTTP endpoint. Clients POST envelopes to the endpoint and
// open a Server-Sent Events stream with GET to receive server-initiated
// notifications; session identity travels in the Mcp-Session-Id header.
//
// # Overview
//
// The module consists of several sub-packages:
//
//   - pkg/protocol: envelope codec, method names and payload types
//   - pkg/errors: structured errors with JSON-RPC codes
//   - pkg/logging: structured process logging
//   - pkg/pagination: opaque cursor paging for list operations
//   - pkg/registry: resources, templated resources and tools
//   - pkg/session: session state machine, manager and handshake negotiation
//   - pkg/engine: dispatcher, handshake gate and cooperative cancellation
//   - pkg/broadcast: notification fan-out with severity filtering
//   - pkg/streamhttp: the single-endpoint HTTP/SSE transport
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//   - pkg/config: environment-driven configuration
//
// # Creating a Server
//
//	import (
//	    "context"
//	    "github.com/agentwire/agentwire"
//	    "github.com/agentwire/agentwire/pkg/protocol"
//	    "github.com/agentwire/agentwire/pkg/registry"
//	)
//
//	func main() {
//	    srv := agentwire.NewServer(
//	        agentwire.WithName("demo"),
//	        agentwire.WithVersion("1.0.0"),
//	        agentwire.WithListenAddr(":8080"),
//	    )
//
//	    _ = srv.RegisterTool(protocol.Tool{Name: "echo", Description: "Echoes input"},
//	        func(ctx context.Context, req registry.ToolRequest) (*protocol.CallToolResult, error) {
//	            return protocol.TextContent(string(req.Arguments)), nil
//	        }, nil)
//
//	    if err := srv.Start(context.Background()); err != nil {
//	        // Handle error
//	    }
//	}
//
// A client first sends an initialize request (which mints the session),
// follows up with a notifications/initialized notification, and from then on
// may call resources/list, resources/read, tools/list, tools/call and
// logging/setLevel. In-flight requests can be cancelled cooperatively with a
// notifications/cancelled notification.
package agentwire
