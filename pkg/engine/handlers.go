package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentwire/agentwire/pkg/errors"
	"github.com/agentwire/agentwire/pkg/logging"
	"github.com/agentwire/agentwire/pkg/pagination"
	"github.com/agentwire/agentwire/pkg/protocol"
	"github.com/agentwire/agentwire/pkg/registry"
	"github.com/agentwire/agentwire/pkg/session"
)

// dispatch routes a gated request to its method handler and returns the
// result payload. Routing is by exact method string; there is no fallback.
func (e *Engine) dispatch(ctx context.Context, sess *session.Session, req *protocol.Request) (interface{}, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return e.negotiator.Initialize(sess, req.Params)

	case protocol.MethodPing:
		return e.handlePing(req.Params)

	case protocol.MethodListResources:
		return e.handleListResources(req.Params)

	case protocol.MethodReadResource:
		return e.handleReadResource(ctx, sess, req)

	case protocol.MethodListTools:
		return e.handleListTools(ctx, req.Params)

	case protocol.MethodCallTool:
		return e.handleCallTool(ctx, sess, req)

	case protocol.MethodSetLogLevel:
		return e.handleSetLogLevel(sess, req.Params)

	default:
		return nil, errors.MethodNotFound(req.Method)
	}
}

// handlePing echoes the client timestamp, or the server clock when the
// client sent none.
func (e *Engine) handlePing(raw json.RawMessage) (interface{}, error) {
	var params protocol.PingParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.InvalidParams(protocol.MethodPing, err.Error())
		}
	}
	ts := params.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return &protocol.PingResult{Timestamp: ts}, nil
}

func (e *Engine) handleListResources(raw json.RawMessage) (interface{}, error) {
	var params protocol.ListResourcesParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.InvalidParams(protocol.MethodListResources, err.Error())
		}
	}

	all := e.registry.Load().Resources(params.Scheme)
	start, end, page, err := pagination.Page(len(all), &params.PaginationParams)
	if err != nil {
		return nil, errors.InvalidCursor(err)
	}
	return &protocol.ListResourcesResult{
		Resources:        all[start:end],
		PaginationResult: page,
	}, nil
}

func (e *Engine) handleReadResource(ctx context.Context, sess *session.Session, req *protocol.Request) (interface{}, error) {
	var params protocol.ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.InvalidParams(protocol.MethodReadResource, err.Error())
	}
	if params.URI == "" {
		return nil, errors.MissingParam(protocol.MethodReadResource, "uri")
	}

	entry, args, ok := e.registry.Load().ResolveResource(params.URI)
	if !ok {
		return nil, errors.ResourceNotFound(params.URI)
	}

	resReq := registry.ResourceRequest{
		URI:  params.URI,
		Args: args,
		Emit: e.emitterFor(sess, req.ID),
	}

	var contents *protocol.ResourceContents
	err := e.runHandler(ctx, protocol.MethodReadResource, func(ctx context.Context) error {
		var handlerErr error
		contents, handlerErr = entry.Handler(ctx, resReq)
		return handlerErr
	})
	if err != nil {
		return nil, err
	}
	if contents == nil {
		return nil, errors.Internal(protocol.MethodReadResource,
			fmt.Errorf("handler for %s returned no contents", params.URI))
	}
	if contents.URI == "" {
		contents.URI = params.URI
	}
	return &protocol.ReadResourceResult{
		Contents: []protocol.ResourceContents{*contents},
	}, nil
}

func (e *Engine) handleListTools(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.ListToolsParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.InvalidParams(protocol.MethodListTools, err.Error())
		}
	}

	all := e.registry.Load().Tools(ctx)
	start, end, page, err := pagination.Page(len(all), &params.PaginationParams)
	if err != nil {
		return nil, errors.InvalidCursor(err)
	}
	return &protocol.ListToolsResult{
		Tools:            all[start:end],
		PaginationResult: page,
	}, nil
}

func (e *Engine) handleCallTool(ctx context.Context, sess *session.Session, req *protocol.Request) (interface{}, error) {
	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.InvalidParams(protocol.MethodCallTool, err.Error())
	}
	if params.Name == "" {
		return nil, errors.MissingParam(protocol.MethodCallTool, "name")
	}

	// A disabled tool is indistinguishable from an unregistered one.
	entry, ok := e.registry.Load().FindTool(ctx, params.Name)
	if !ok {
		return nil, errors.MethodNotFound(fmt.Sprintf("%s: %s", protocol.MethodCallTool, params.Name))
	}

	toolReq := registry.ToolRequest{
		Name:      params.Name,
		Arguments: params.Arguments,
		Emit:      e.emitterFor(sess, req.ID),
	}

	var result *protocol.CallToolResult
	err := e.runHandler(ctx, protocol.MethodCallTool, func(ctx context.Context) error {
		var handlerErr error
		result, handlerErr = entry.Handler(ctx, toolReq)
		return handlerErr
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &protocol.CallToolResult{Content: []protocol.ToolContent{}}
	}
	return result, nil
}

func (e *Engine) handleSetLogLevel(sess *session.Session, raw json.RawMessage) (interface{}, error) {
	var params protocol.SetLogLevelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.InvalidParams(protocol.MethodSetLogLevel, err.Error())
	}
	if !params.Level.Valid() {
		return nil, errors.InvalidParams(protocol.MethodSetLogLevel,
			fmt.Sprintf("unknown level %q", params.Level))
	}

	sess.SetLogFloor(params.Level)
	e.logger.Debug("log floor updated",
		logging.String("session_id", sess.ID()),
		logging.String("level", string(params.Level)))
	return &protocol.SetLogLevelResult{}, nil
}

// runHandler executes user handler code under the concurrency limiter with
// panic containment. A panic becomes an internal error response instead of
// taking the server down.
func (e *Engine) runHandler(ctx context.Context, method string, fn func(ctx context.Context) error) (err error) {
	if acquireErr := e.workers.Acquire(ctx, 1); acquireErr != nil {
		return acquireErr
	}
	defer e.workers.Release(1)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panic recovered",
				logging.String("method", method),
				logging.Any("panic", r))
			err = errors.Internal(method, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return fn(ctx)
}

// emitterFor builds the Emitter handlers use to push notifications to the
// requesting session.
func (e *Engine) emitterFor(sess *session.Session, requestID interface{}) registry.Emitter {
	return &sessionEmitter{
		broadcaster: e.broadcaster,
		sess:        sess,
		requestID:   requestID,
		loggerName:  e.emitterName,
	}
}
