// Package streamhttp serves the engine over a single HTTP endpoint: POST
// carries client-to-server envelopes, GET opens the session's Server-Sent
// Events stream, DELETE terminates the session. Session identity travels in
// the Mcp-Session-Id header.
package streamhttp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/agentwire/agentwire/pkg/engine"
	"github.com/agentwire/agentwire/pkg/errors"
	"github.com/agentwire/agentwire/pkg/logging"
	"github.com/agentwire/agentwire/pkg/protocol"
	"github.com/agentwire/agentwire/pkg/session"
)

const (
	// SessionHeader carries the session ID on every request after the first.
	SessionHeader = "Mcp-Session-Id"

	// lastEventIDHeader is accepted for SSE reconnects. Replay is not
	// offered, so the value is read and ignored.
	lastEventIDHeader = "Last-Event-Id"

	// DefaultMaxBodyBytes bounds a POST body.
	DefaultMaxBodyBytes = 4 << 20

	// DefaultKeepAliveInterval paces SSE comment lines on idle streams.
	DefaultKeepAliveInterval = 30 * time.Second
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// StreamObserver receives stream lifecycle events, for metrics.
type StreamObserver interface {
	StreamOpened()
	StreamClosed()
}

type nopStreamObserver struct{}

func (nopStreamObserver) StreamOpened() {}
func (nopStreamObserver) StreamClosed() {}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's process logger.
func WithLogger(logger logging.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger.WithFields(logging.String("component", "streamhttp"))
		}
	}
}

// WithAllowedOrigins sets the Origin allowlist. Entries are exact origin
// strings ("https://app.example.com"); the literal "*" allows any origin.
// Requests without an Origin header are always allowed.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.allowedOrigins = origins }
}

// WithKeepAliveInterval overrides the SSE keep-alive cadence.
func WithKeepAliveInterval(interval time.Duration) Option {
	return func(h *Handler) {
		if interval > 0 {
			h.keepAlive = interval
		}
	}
}

// WithMaxBodyBytes overrides the POST body limit.
func WithMaxBodyBytes(limit int64) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.maxBodyBytes = limit
		}
	}
}

// WithStreamObserver sets the stream lifecycle observer.
func WithStreamObserver(obs StreamObserver) Option {
	return func(h *Handler) {
		if obs != nil {
			h.observer = obs
		}
	}
}

// Handler is the single-endpoint HTTP transport. It implements http.Handler
// and is safe for concurrent use.
type Handler struct {
	engine   *engine.Engine
	sessions *session.Manager

	logger         logging.Logger
	observer       StreamObserver
	allowedOrigins []string
	keepAlive      time.Duration
	maxBodyBytes   int64
}

// NewHandler creates the transport over an engine and its session manager.
func NewHandler(eng *engine.Engine, sessions *session.Manager, opts ...Option) *Handler {
	h := &Handler{
		engine:       eng,
		sessions:     sessions,
		logger:       logging.Discard(),
		observer:     nopStreamObserver{},
		keepAlive:    DefaultKeepAliveInterval,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		h.logger.Warn("origin rejected", logging.String("origin", r.Header.Get("Origin")))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	h.setCORSHeaders(w, r)

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost accepts one envelope. An initialize request with no session
// header mints a new session; everything else must name an existing one.
// Requests answer with a JSON envelope, notifications with 202.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	sess, created, errResp := h.resolveSession(r, body)
	if errResp != nil {
		h.writeResponse(w, http.StatusOK, "", errResp)
		return
	}

	resp := h.engine.HandleMessage(r.Context(), sess, body)
	if resp == nil {
		// Notification: accepted, nothing to say.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	sessionID := ""
	if created {
		sessionID = sess.ID()
	}
	h.writeResponse(w, http.StatusOK, sessionID, resp)
}

// resolveSession maps the request to its session. The error return is a
// ready-to-send envelope, so transport-level session failures still answer
// in JSON-RPC form.
func (h *Handler) resolveSession(r *http.Request, body []byte) (sess *session.Session, created bool, errResp *protocol.Response) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID != "" {
		existing, ok := h.sessions.Get(sessionID)
		if !ok {
			engErr := errors.SessionNotFound(sessionID)
			resp, _ := protocol.NewErrorResponse(nil, engErr.Code(), engErr.Message(), engErr.Data())
			return nil, false, resp
		}
		return existing, false, nil
	}

	// No session yet: only an initialize request may mint one.
	if msg, err := protocol.ParseMessage(body); err == nil &&
		msg.Kind == protocol.KindRequest && msg.Request.Method == protocol.MethodInitialize {
		return h.sessions.Create(), true, nil
	}

	engErr := errors.SessionNotFound("")
	resp, _ := protocol.NewErrorResponse(nil, engErr.Code(),
		"Missing "+SessionHeader+" header", engErr.Data())
	return nil, false, resp
}

// handleGet opens the session's SSE stream. A session gets at most one; a
// concurrent second attempt is rejected.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		http.Error(w, "accept must include text/event-stream", http.StatusNotAcceptable)
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		http.Error(w, "missing "+SessionHeader+" header", http.StatusBadRequest)
		return
	}
	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Reconnecting clients send the last event ID they saw. There is no
	// replay buffer, so the value is acknowledged by ignoring it.
	_ = r.Header.Get(lastEventIDHeader)

	stream := newSSEStream(w, flusher)
	if err := sess.AttachStream(stream); err != nil {
		engErr := errors.StreamAlreadyOpen(sessionID)
		http.Error(w, engErr.Message(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	stream.start()

	h.observer.StreamOpened()
	h.logger.Debug("stream opened", logging.String("session_id", sessionID))

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	defer func() {
		sess.DetachStream(stream)
		_ = stream.Close()
		h.observer.StreamClosed()
		h.logger.Debug("stream closed", logging.String("session_id", sessionID))
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stream.Done():
			return
		case <-ticker.C:
			if err := stream.keepAlive(); err != nil {
				return
			}
		}
	}
}

// handleDelete terminates the session, cancelling its in-flight requests.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		http.Error(w, "missing "+SessionHeader+" header", http.StatusBadRequest)
		return
	}
	if !h.engine.TerminateSession(sessionID) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	h.logger.Info("session deleted", logging.String("session_id", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeResponse(w http.ResponseWriter, status int, sessionID string, resp *protocol.Response) {
	w.Header().Set("Content-Type", "application/json")
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Warn("failed to write response")
	}
}

// originAllowed applies the allowlist to browser requests. With no explicit
// allowlist, loopback origins are accepted; this keeps local development
// working while refusing cross-site requests from the open web.
func (h *Handler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		return isLoopbackOrigin(origin)
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+SessionHeader+", "+lastEventIDHeader)
	w.Header().Set("Access-Control-Expose-Headers", SessionHeader)
}
