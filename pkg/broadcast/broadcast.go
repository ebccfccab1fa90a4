// Package broadcast delivers server-initiated notifications to session event
// streams. Delivery is fire-and-forget: a session without an open stream
// simply misses the notification, nothing is queued or retried. Ordering is
// guaranteed per stream only; cross-session ordering is unspecified.
package broadcast

import (
	"encoding/json"
	"time"

	"github.com/agentwire/agentwire/pkg/logging"
	"github.com/agentwire/agentwire/pkg/protocol"
	"github.com/agentwire/agentwire/pkg/session"
)

// Drop reasons reported to the delivery observer.
const (
	DropNoStream    = "no_stream"
	DropSeverity    = "below_severity_floor"
	DropNotReady    = "session_not_ready"
	DropWriteFailed = "write_failed"
	DropMarshal     = "marshal_failed"
)

// DeliveryObserver receives per-notification delivery outcomes, for metrics.
type DeliveryObserver interface {
	NotificationDelivered(method string)
	NotificationDropped(method, reason string)
}

type nopObserver struct{}

func (nopObserver) NotificationDelivered(string)       {}
func (nopObserver) NotificationDropped(string, string) {}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the broadcaster's process logger.
func WithLogger(logger logging.Logger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger.WithFields(logging.String("component", "broadcast"))
		}
	}
}

// WithObserver sets the delivery observer.
func WithObserver(obs DeliveryObserver) Option {
	return func(b *Broadcaster) {
		if obs != nil {
			b.observer = obs
		}
	}
}

// Broadcaster fans notifications out to sessions. It is safe for concurrent
// use; per-stream write order is serialized by the session.
type Broadcaster struct {
	manager  *session.Manager
	logger   logging.Logger
	observer DeliveryObserver
}

// New creates a Broadcaster over the given session manager.
func New(manager *session.Manager, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		manager:  manager,
		logger:   logging.Discard(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send delivers one notification to a single session. A missing stream is a
// silent drop, not an error; a write failure tears the stream down.
func (b *Broadcaster) Send(sess *session.Session, method string, params interface{}) {
	notif, err := protocol.NewNotification(method, params)
	if err != nil {
		b.observer.NotificationDropped(method, DropMarshal)
		b.logger.Warn("failed to build notification",
			logging.String("method", method),
			logging.ErrorField(err))
		return
	}
	payload, err := json.Marshal(notif)
	if err != nil {
		b.observer.NotificationDropped(method, DropMarshal)
		return
	}

	if err := sess.Publish(payload); err != nil {
		reason := DropWriteFailed
		if err == session.ErrNoStream {
			reason = DropNoStream
		} else {
			b.logger.Warn("stream write failed, stream torn down",
				logging.String("session_id", sess.ID()),
				logging.String("method", method),
				logging.ErrorField(err))
		}
		b.observer.NotificationDropped(method, reason)
		return
	}
	b.observer.NotificationDelivered(method)
}

// Log delivers a notifications/message to one session, subject to the
// session's severity floor at the moment of sending.
func (b *Broadcaster) Log(sess *session.Session, level protocol.LogLevel, loggerName string, data interface{}) {
	if !level.AtLeast(sess.LogFloor()) {
		b.observer.NotificationDropped(protocol.MethodLogMessage, DropSeverity)
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		b.observer.NotificationDropped(protocol.MethodLogMessage, DropMarshal)
		return
	}
	b.Send(sess, protocol.MethodLogMessage, protocol.LogMessageParams{
		Level:  level,
		Logger: loggerName,
		Time:   time.Now().UTC(),
		Data:   raw,
	})
}

// Progress delivers a notifications/progress tied to an in-flight request.
func (b *Broadcaster) Progress(sess *session.Session, token interface{}, message string, progress, total float64) {
	b.Send(sess, protocol.MethodProgress, protocol.ProgressParams{
		ProgressToken: token,
		Message:       message,
		Progress:      progress,
		Total:         total,
	})
}

// Broadcast delivers one notification to every ready session. Sessions that
// have not completed the handshake are skipped.
func (b *Broadcaster) Broadcast(method string, params interface{}) {
	b.manager.Each(func(sess *session.Session) {
		if !sess.Ready() {
			b.observer.NotificationDropped(method, DropNotReady)
			return
		}
		b.Send(sess, method, params)
	})
}

// BroadcastLog delivers a log notification to every ready session, applying
// each session's own severity floor.
func (b *Broadcaster) BroadcastLog(level protocol.LogLevel, loggerName string, data interface{}) {
	b.manager.Each(func(sess *session.Session) {
		if !sess.Ready() {
			b.observer.NotificationDropped(protocol.MethodLogMessage, DropNotReady)
			return
		}
		b.Log(sess, level, loggerName, data)
	})
}

// ResourcesChanged announces a registry resource change to all ready sessions.
func (b *Broadcaster) ResourcesChanged() {
	b.Broadcast(protocol.MethodResourcesChanged, struct{}{})
}

// ToolsChanged announces a registry tool change to all ready sessions.
func (b *Broadcaster) ToolsChanged() {
	b.Broadcast(protocol.MethodToolsChanged, struct{}{})
}
