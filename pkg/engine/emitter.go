package engine

import (
	"github.com/agentwire/agentwire/pkg/broadcast"
	"github.com/agentwire/agentwire/pkg/protocol"
	"github.com/agentwire/agentwire/pkg/session"
)

// sessionEmitter routes handler emissions to the requesting session's event
// stream. It carries the request ID so progress notifications can be tied
// back to the request that produced them.
type sessionEmitter struct {
	broadcaster *broadcast.Broadcaster
	sess        *session.Session
	requestID   interface{}
	loggerName  string
}

func (e *sessionEmitter) Log(level protocol.LogLevel, data interface{}) {
	e.broadcaster.Log(e.sess, level, e.loggerName, data)
}

func (e *sessionEmitter) Progress(message string, progress, total float64) {
	e.broadcaster.Progress(e.sess, e.requestID, message, progress, total)
}
