// Package agentwire implements a session-scoped JSON-RPC protocol engine
// served over a single HTTP endpoint. The root package assembles the
// sub-packages into a ready-to-run server; the pieces remain individually
// usable for embedders that want their own wiring.
package agentwire

import (
	"context"
	"net/http"
	"time"

	"github.com/agentwire/agentwire/pkg/broadcast"
	"github.com/agentwire/agentwire/pkg/engine"
	"github.com/agentwire/agentwire/pkg/logging"
	"github.com/agentwire/agentwire/pkg/protocol"
	"github.com/agentwire/agentwire/pkg/registry"
	"github.com/agentwire/agentwire/pkg/session"
	"github.com/agentwire/agentwire/pkg/streamhttp"
)

// Version is the release version of this module.
const Version = "0.1.0"

// Convenience re-exports of the core protocol surface.
const (
	LatestProtocolVersion   = protocol.LatestProtocolVersion
	PreviousProtocolVersion = protocol.PreviousProtocolVersion
)

// Handler signatures, re-exported so simple embedders need only this package.
type (
	ResourceHandler = registry.ResourceHandler
	ToolHandler     = registry.ToolHandler
	EnabledFunc     = registry.EnabledFunc
	Emitter         = registry.Emitter
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithName sets the advertised server name.
func WithName(name string) ServerOption {
	return func(s *Server) { s.info.Name = name }
}

// WithVersion sets the advertised server version.
func WithVersion(version string) ServerOption {
	return func(s *Server) { s.info.Version = version }
}

// WithDescription sets the advertised server description.
func WithDescription(desc string) ServerOption {
	return func(s *Server) { s.info.Description = desc }
}

// WithInstructions sets the usage hint returned from the handshake.
func WithInstructions(text string) ServerOption {
	return func(s *Server) { s.instructions = text }
}

// WithLogger sets the process logger used by every component.
func WithLogger(logger logging.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListenAddr sets the bind address of the protocol endpoint.
func WithListenAddr(addr string) ServerOption {
	return func(s *Server) { s.listenAddr = addr }
}

// WithEndpointPath sets the URL path of the protocol endpoint.
func WithEndpointPath(path string) ServerOption {
	return func(s *Server) { s.endpointPath = path }
}

// WithAllowedOrigins sets the transport Origin allowlist.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// WithSessionTTL sets the idle session lifetime.
func WithSessionTTL(ttl time.Duration) ServerOption {
	return func(s *Server) { s.sessionTTL = ttl }
}

// WithKeepAliveInterval sets the SSE keep-alive cadence.
func WithKeepAliveInterval(interval time.Duration) ServerOption {
	return func(s *Server) { s.keepAlive = interval }
}

// WithMaxConcurrent bounds concurrent handler executions.
func WithMaxConcurrent(n int64) ServerOption {
	return func(s *Server) { s.maxConcurrent = n }
}

// Observer bundles the metric hooks of all components. The observability
// package's MetricsProvider satisfies it.
type Observer interface {
	engine.Observer
	broadcast.DeliveryObserver
	streamhttp.StreamObserver
}

// WithObserver wires one observer into the engine, broadcaster and transport.
func WithObserver(obs Observer) ServerOption {
	return func(s *Server) { s.observer = obs }
}

// WithMiddleware wraps the protocol endpoint handler. Applied outermost-last.
func WithMiddleware(mw func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.middleware = append(s.middleware, mw) }
}

// Server is the assembled protocol server.
type Server struct {
	info         protocol.ServerInfo
	instructions string
	logger       logging.Logger

	listenAddr    string
	endpointPath  string
	origins       []string
	sessionTTL    time.Duration
	keepAlive     time.Duration
	maxConcurrent int64
	observer      Observer
	middleware    []func(http.Handler) http.Handler

	registry    *registry.Registry
	sessions    *session.Manager
	broadcaster *broadcast.Broadcaster
	engine      *engine.Engine
	handler     http.Handler
	httpServer  *http.Server
}

// NewServer assembles a server from its sub-packages.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		info:         protocol.ServerInfo{Name: "agentwire", Version: Version},
		logger:       logging.Discard(),
		listenAddr:   ":8080",
		endpointPath: "/rpc",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = registry.New()

	managerOpts := []session.ManagerOption{session.WithLogger(s.logger)}
	if s.sessionTTL > 0 {
		managerOpts = append(managerOpts, session.WithTTL(s.sessionTTL))
	}
	s.sessions = session.NewManager(managerOpts...)

	broadcastOpts := []broadcast.Option{broadcast.WithLogger(s.logger)}
	if s.observer != nil {
		broadcastOpts = append(broadcastOpts, broadcast.WithObserver(s.observer))
	}
	s.broadcaster = broadcast.New(s.sessions, broadcastOpts...)

	negotiator := session.NewNegotiator(s.info, s.capabilities(),
		session.WithInstructions(s.instructions),
		session.WithNegotiatorLogger(s.logger))

	engineOpts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithEmitterName(s.info.Name),
	}
	if s.observer != nil {
		engineOpts = append(engineOpts, engine.WithObserver(s.observer))
	}
	if s.maxConcurrent > 0 {
		engineOpts = append(engineOpts, engine.WithMaxConcurrent(s.maxConcurrent))
	}
	s.engine = engine.New(s.registry, s.sessions, negotiator, s.broadcaster, engineOpts...)

	handlerOpts := []streamhttp.Option{
		streamhttp.WithLogger(s.logger),
		streamhttp.WithAllowedOrigins(s.origins),
	}
	if s.keepAlive > 0 {
		handlerOpts = append(handlerOpts, streamhttp.WithKeepAliveInterval(s.keepAlive))
	}
	if s.observer != nil {
		handlerOpts = append(handlerOpts, streamhttp.WithStreamObserver(s.observer))
	}

	var h http.Handler = streamhttp.NewHandler(s.engine, s.sessions, handlerOpts...)
	for _, mw := range s.middleware {
		h = mw(h)
	}
	s.handler = h
	return s
}

// capabilities derives the advertised capability set. All three features are
// always on; the registry decides what is actually listable.
func (s *Server) capabilities() protocol.ServerCapabilities {
	return protocol.ServerCapabilities{
		Tools:     &protocol.ToolsCapability{ListChanged: true},
		Resources: &protocol.ResourcesCapability{ListChanged: true},
		Logging:   map[string]interface{}{},
	}
}

// RegisterStaticResource registers a resource with fixed contents.
func (s *Server) RegisterStaticResource(res protocol.Resource, contents protocol.ResourceContents) error {
	return s.registry.RegisterStatic(res, contents)
}

// RegisterResource registers a dynamic resource under an exact URI.
func (s *Server) RegisterResource(res protocol.Resource, handler ResourceHandler) error {
	return s.registry.RegisterResource(res, handler)
}

// RegisterResourceTemplate registers a templated resource.
func (s *Server) RegisterResourceTemplate(res protocol.Resource, handler ResourceHandler) error {
	return s.registry.RegisterTemplate(res, handler)
}

// RegisterTool registers a tool, optionally gated by an enabled predicate.
func (s *Server) RegisterTool(tool protocol.Tool, handler ToolHandler, enabled EnabledFunc) error {
	return s.registry.RegisterTool(tool, handler, enabled)
}

// Broadcaster exposes the notification fan-out for server-side producers.
func (s *Server) Broadcaster() *broadcast.Broadcaster { return s.broadcaster }

// Sessions exposes the session manager.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// InFlight returns the number of requests currently being dispatched.
func (s *Server) InFlight() int { return s.engine.InFlight() }

// Handler returns the protocol endpoint handler, for callers that mount it
// on their own mux.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves the protocol endpoint until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.endpointPath, s.handler)

	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.logger.Info("server listening",
		logging.String("addr", s.listenAddr),
		logging.String("endpoint", s.endpointPath))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests, closes streams and sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := s.sessions.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	s.logger.Info("server stopped")
	return firstErr
}
