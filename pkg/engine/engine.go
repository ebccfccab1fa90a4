// Package engine is the protocol core: it parses envelopes, enforces the
// handshake gate, routes methods to registry handlers, and guarantees exactly
// one response per request, including under cooperative cancellation.
package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agentwire/agentwire/pkg/broadcast"
	"github.com/agentwire/agentwire/pkg/errors"
	"github.com/agentwire/agentwire/pkg/logging"
	"github.com/agentwire/agentwire/pkg/protocol"
	"github.com/agentwire/agentwire/pkg/registry"
	"github.com/agentwire/agentwire/pkg/session"
)

// DefaultMaxConcurrent bounds how many resource and tool handlers may run at
// once across all sessions.
const DefaultMaxConcurrent = 64

// Dispatch outcomes reported to the observer.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Observer receives dispatch lifecycle events, for metrics.
type Observer interface {
	DispatchStarted(method string)
	DispatchFinished(method, outcome string, elapsed time.Duration)
	CancellationRequested(honored bool)
}

type nopEngineObserver struct{}

func (nopEngineObserver) DispatchStarted(string)                         {}
func (nopEngineObserver) DispatchFinished(string, string, time.Duration) {}
func (nopEngineObserver) CancellationRequested(bool)                     {}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's process logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.WithFields(logging.String("component", "engine"))
		}
	}
}

// WithObserver sets the dispatch observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		if obs != nil {
			e.observer = obs
		}
	}
}

// WithMaxConcurrent bounds concurrent handler executions.
func WithMaxConcurrent(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = semaphore.NewWeighted(n)
		}
	}
}

// WithEmitterName sets the logger name attached to protocol log
// notifications emitted by handlers.
func WithEmitterName(name string) Option {
	return func(e *Engine) { e.emitterName = name }
}

// Engine dispatches parsed envelopes against the registry for one server.
type Engine struct {
	registry    *registry.Registry
	sessions    *session.Manager
	negotiator  *session.Negotiator
	broadcaster *broadcast.Broadcaster
	tracker     *cancelTracker
	workers     *semaphore.Weighted
	logger      logging.Logger
	observer    Observer
	emitterName string
}

// New creates an Engine over the given collaborators.
func New(reg *registry.Registry, sessions *session.Manager, negotiator *session.Negotiator, broadcaster *broadcast.Broadcaster, opts ...Option) *Engine {
	e := &Engine{
		registry:    reg,
		sessions:    sessions,
		negotiator:  negotiator,
		broadcaster: broadcaster,
		tracker:     newCancelTracker(),
		workers:     semaphore.NewWeighted(DefaultMaxConcurrent),
		logger:      logging.Discard(),
		observer:    nopEngineObserver{},
		emitterName: "server",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Broadcaster returns the engine's notification broadcaster, for server-side
// producers outside the dispatch path.
func (e *Engine) Broadcaster() *broadcast.Broadcaster { return e.broadcaster }

// InFlight returns the number of requests currently being dispatched.
func (e *Engine) InFlight() int { return e.tracker.inFlight() }

// HandleMessage parses one wire payload and dispatches it. Requests yield a
// response; notifications yield nil. Malformed payloads yield an error
// response with a null ID, per JSON-RPC.
func (e *Engine) HandleMessage(ctx context.Context, sess *session.Session, payload []byte) *protocol.Response {
	msg, err := protocol.ParseMessage(payload)
	if err != nil {
		return e.parseFailureResponse(err)
	}

	switch msg.Kind {
	case protocol.KindRequest:
		return e.HandleRequest(ctx, sess, msg.Request)
	case protocol.KindNotification:
		e.HandleNotification(ctx, sess, msg.Notification)
		return nil
	default:
		// Client-to-server responses have no place in this protocol;
		// drop them like unknown notifications.
		e.logger.Debug("ignoring unexpected response envelope",
			logging.String("session_id", sess.ID()))
		return nil
	}
}

func (e *Engine) parseFailureResponse(err error) *protocol.Response {
	var engErr errors.EngineError
	switch {
	case stderrors.Is(err, protocol.ErrMalformedJSON):
		engErr = errors.ParseError(err)
	default:
		engErr = errors.InvalidRequest(err.Error())
	}
	resp, _ := protocol.NewErrorResponse(nil, engErr.Code(), engErr.Message(), engErr.Data())
	return resp
}

// HandleRequest dispatches one request and returns its single response. The
// response is produced exactly once regardless of cancellation races, panics,
// or handler errors.
func (e *Engine) HandleRequest(ctx context.Context, sess *session.Session, req *protocol.Request) *protocol.Response {
	started := time.Now()
	e.observer.DispatchStarted(req.Method)

	requestKey := formatRequestID(req.ID)
	ctx = logging.ContextWithRequestID(ctx, requestKey)
	log := e.logger.WithContext(ctx).WithFields(
		logging.String("session_id", sess.ID()),
		logging.String("method", req.Method))

	if err := e.checkGate(sess, req.Method); err != nil {
		log.Warn("request rejected by handshake gate")
		e.observer.DispatchFinished(req.Method, OutcomeError, time.Since(started))
		return e.errorResponse(req.ID, err)
	}

	if err := sess.TrackRequest(requestKey); err != nil {
		log.Warn("duplicate in-flight request id")
		e.observer.DispatchFinished(req.Method, OutcomeError, time.Since(started))
		return e.errorResponse(req.ID, errors.InvalidRequest(err.Error()))
	}
	defer sess.ReleaseRequest(requestKey)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	token := e.tracker.track(sess.ID(), requestKey, cancel)
	defer e.tracker.remove(sess.ID(), requestKey)

	result, err := e.dispatch(reqCtx, sess, req)

	outcome := OutcomeOK
	var resp *protocol.Response
	switch {
	case err == nil:
		resp, err = protocol.NewResponse(req.ID, result)
		if err != nil {
			log.WithError(err).Error("failed to encode result")
			resp = e.errorResponse(req.ID, errors.Internal(req.Method, err))
			outcome = OutcomeError
		}
	case token.CancelRequested() && stderrors.Is(err, context.Canceled):
		log.Info("request cancelled", logging.String("reason", token.Reason()))
		resp = e.errorResponse(req.ID, errors.RequestCancelled(requestKey))
		outcome = OutcomeCancelled
	default:
		log.WithError(err).Warn("request failed")
		resp = e.errorResponse(req.ID, err)
		outcome = OutcomeError
	}

	e.observer.DispatchFinished(req.Method, outcome, time.Since(started))
	return resp
}

// HandleNotification dispatches one notification. Notifications never produce
// a response; protocol violations are logged and swallowed.
func (e *Engine) HandleNotification(ctx context.Context, sess *session.Session, notif *protocol.Notification) {
	log := e.logger.WithFields(
		logging.String("session_id", sess.ID()),
		logging.String("method", notif.Method))

	switch notif.Method {
	case protocol.MethodInitialized:
		if err := sess.CompleteHandshake(); err != nil {
			log.Warn("initialized notification out of order",
				logging.String("state", sess.State().String()))
			return
		}
		log.Info("session ready",
			logging.String("protocol_version", sess.ProtocolVersion()))

	case protocol.MethodCancelled:
		e.handleCancelled(sess, notif, log)

	default:
		// Unknown notifications are ignorable by contract.
		log.Debug("ignoring unknown notification")
	}
}

func (e *Engine) handleCancelled(sess *session.Session, notif *protocol.Notification, log logging.Logger) {
	var params protocol.CancelledParams
	if len(notif.Params) > 0 {
		if err := json.Unmarshal(notif.Params, &params); err != nil {
			log.Debug("malformed cancelled notification", logging.ErrorField(err))
			return
		}
	}
	if params.RequestID == nil {
		return
	}

	requestKey := formatRequestID(params.RequestID)
	honored := e.tracker.requestCancel(sess.ID(), requestKey, params.Reason)
	e.observer.CancellationRequested(honored)
	if honored {
		log.Debug("cancellation requested",
			logging.String("target_request_id", requestKey),
			logging.String("reason", params.Reason))
	}
	// Unknown or already-finished request: silent no-op, the race is legal.
}

// checkGate enforces the handshake state machine. Before the session is
// ready only initialize and ping may be requested.
func (e *Engine) checkGate(sess *session.Session, method string) errors.EngineError {
	if sess.Ready() {
		if method == protocol.MethodInitialize {
			return errors.InvalidRequest("session already initialized")
		}
		return nil
	}
	switch method {
	case protocol.MethodInitialize, protocol.MethodPing:
		return nil
	default:
		return errors.ServerNotInitialized(method)
	}
}

// TerminateSession cancels the session's in-flight requests and removes it.
func (e *Engine) TerminateSession(sessionID string) bool {
	e.tracker.cancelSession(sessionID, "session terminated")
	return e.sessions.Terminate(sessionID)
}

// errorResponse converts any error into a well-formed error envelope.
func (e *Engine) errorResponse(id interface{}, err error) *protocol.Response {
	engErr, ok := errors.AsEngineError(err)
	if !ok {
		engErr = errors.Internal("dispatch", err)
	}
	resp, buildErr := protocol.NewErrorResponse(id, engErr.Code(), engErr.Message(), engErr.Data())
	if buildErr != nil {
		resp, _ = protocol.NewErrorResponse(id, engErr.Code(), engErr.Message(), nil)
	}
	return resp
}

// formatRequestID normalizes a JSON-RPC ID to a map key. JSON numbers arrive
// as float64; integral values are rendered without a fraction so the key is
// stable across re-encodings.
func formatRequestID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
