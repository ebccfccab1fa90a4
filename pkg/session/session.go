// Package session holds the server-side state of one logical client
// connection: the negotiated protocol version and capabilities, the handshake
// state machine, the set of outstanding request IDs, and the zero-or-one
// outbound event stream. Sessions are independent; nothing in this package is
// shared across sessions except the Manager's index.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentwire/agentwire/pkg/protocol"
)

// State is the lifecycle position of a session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosing
	StateClosed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrBadTransition reports an illegal state machine move.
	ErrBadTransition = errors.New("illegal session state transition")

	// ErrStreamExists reports an attempt to open a second event stream.
	ErrStreamExists = errors.New("session already has an active stream")

	// ErrNoStream reports a publish against a session with no open stream.
	ErrNoStream = errors.New("session has no active stream")

	// ErrDuplicateRequestID reports a request ID already outstanding.
	ErrDuplicateRequestID = errors.New("request id already in flight")
)

// StreamWriter is the transport-side sink for one open server-to-client
// stream. Send must be safe to call until Close returns.
type StreamWriter interface {
	// Send writes one envelope payload as a stream event.
	Send(payload []byte) error

	// Close tears the stream down.
	Close() error
}

// Session is the per-connection state. All methods are safe for concurrent
// use; the hot-path maps are guarded per session so unrelated sessions never
// contend.
type Session struct {
	id        string
	createdAt time.Time

	mu              sync.Mutex
	state           State
	protocolVersion string
	clientInfo      *protocol.ClientInfo
	clientCaps      *protocol.ClientCapabilities
	lastUsedAt      time.Time
	expiresAt       time.Time
	outstanding     map[string]struct{}
	logFloor        protocol.LogLevel

	streamMu sync.Mutex
	stream   StreamWriter
}

func newSession(id string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		id:          id,
		createdAt:   now,
		lastUsedAt:  now,
		expiresAt:   now.Add(ttl),
		state:       StateUninitialized,
		outstanding: make(map[string]struct{}),
		logFloor:    protocol.LogLevelDebug,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the handshake has completed.
func (s *Session) Ready() bool { return s.State() == StateReady }

// ProtocolVersion returns the negotiated protocol revision, or "" before
// negotiation.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// ClientInfo returns the client identity declared during initialize.
func (s *Session) ClientInfo() *protocol.ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// ClientCapabilities returns the client-declared capability set.
func (s *Session) ClientCapabilities() *protocol.ClientCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientCaps
}

// beginInitialize records the initialize exchange and moves the session to
// initializing. Re-negotiation of an already-negotiated session is rejected.
func (s *Session) beginInitialize(version string, info *protocol.ClientInfo, caps *protocol.ClientCapabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return fmt.Errorf("%w: initialize in state %s", ErrBadTransition, s.state)
	}
	s.state = StateInitializing
	s.protocolVersion = version
	s.clientInfo = info
	s.clientCaps = caps
	return nil
}

// CompleteHandshake moves initializing to ready upon the client's
// initialized notification.
func (s *Session) CompleteHandshake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return fmt.Errorf("%w: initialized notification in state %s", ErrBadTransition, s.state)
	}
	s.state = StateReady
	return nil
}

// BeginClose moves the session to closing. Safe to call from any live state.
func (s *Session) BeginClose() {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateClosing
	}
	s.mu.Unlock()
	s.CloseStream()
}

// FinishClose marks the session closed.
func (s *Session) FinishClose() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// TrackRequest records a request ID as outstanding. The ID must be unique
// among the session's in-flight requests.
func (s *Session) TrackRequest(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.outstanding[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRequestID, id)
	}
	s.outstanding[id] = struct{}{}
	return nil
}

// ReleaseRequest removes a request ID from the outstanding set.
func (s *Session) ReleaseRequest(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outstanding, id)
}

// OutstandingRequests returns the IDs currently in flight.
func (s *Session) OutstandingRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.outstanding))
	for id := range s.outstanding {
		ids = append(ids, id)
	}
	return ids
}

// SetLogFloor sets the minimum severity for protocol log notifications sent
// to this session. The floor applies at send time, so it affects messages
// emitted after the change regardless of when the producer started.
func (s *Session) SetLogFloor(level protocol.LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logFloor = level
}

// LogFloor returns the session's current severity floor.
func (s *Session) LogFloor() protocol.LogLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logFloor
}

// AttachStream binds the session's single outbound stream. A second
// concurrent stream is rejected with ErrStreamExists.
func (s *Session) AttachStream(w StreamWriter) error {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stream != nil {
		return ErrStreamExists
	}
	s.stream = w
	return nil
}

// DetachStream unbinds the stream if w is still the active one. Late
// detaches from an already-replaced stream are no-ops.
func (s *Session) DetachStream(w StreamWriter) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stream == w {
		s.stream = nil
	}
}

// HasStream reports whether an outbound stream is currently open.
func (s *Session) HasStream() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.stream != nil
}

// Publish writes one envelope payload to the session's stream, preserving
// emission order (the stream mutex makes this the stream's single writer).
// With no stream open it returns ErrNoStream; on a write failure the stream
// is torn down so subsequent notifications are dropped until a new one opens.
func (s *Session) Publish(payload []byte) error {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stream == nil {
		return ErrNoStream
	}
	if err := s.stream.Send(payload); err != nil {
		_ = s.stream.Close()
		s.stream = nil
		return err
	}
	return nil
}

// CloseStream tears down the stream, if any.
func (s *Session) CloseStream() {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
}

// touch extends the session's expiry on activity.
func (s *Session) touch(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.lastUsedAt = now
	s.expiresAt = now.Add(ttl)
}

// expired reports whether the session's TTL has elapsed.
func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expiresAt)
}
