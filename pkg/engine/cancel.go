package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token lifecycle. A token is created when dispatch begins, may move to
// cancel-requested exactly once, and is terminated by the dispatcher when the
// single response for the request has been produced. Cancellation is
// cooperative: the handler's context is cancelled, nothing is preempted.
const (
	tokenRunning int32 = iota
	tokenCancelRequested
	tokenTerminated
)

// Token tracks one in-flight request for cancellation purposes.
type Token struct {
	sessionID string
	requestID string

	state  atomic.Int32
	cancel context.CancelFunc

	mu     sync.Mutex
	reason string
}

// CancelRequested reports whether a cancellation notification arrived for
// this request.
func (t *Token) CancelRequested() bool {
	return t.state.Load() == tokenCancelRequested
}

// Reason returns the client-supplied cancellation reason, or "".
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// requestCancel moves running to cancel-requested and fires the context
// cancel. Repeated cancellations and cancellations of terminated tokens are
// no-ops.
func (t *Token) requestCancel(reason string) bool {
	if !t.state.CompareAndSwap(tokenRunning, tokenCancelRequested) {
		return false
	}
	t.mu.Lock()
	t.reason = reason
	t.mu.Unlock()
	t.cancel()
	return true
}

// terminate marks the token finished. Only the dispatcher calls this, after
// it has produced the request's single response.
func (t *Token) terminate() {
	t.state.Store(tokenTerminated)
	t.cancel()
}

// cancelTracker indexes in-flight request tokens by session and request ID.
type cancelTracker struct {
	mu     sync.Mutex
	tokens map[string]map[string]*Token // session ID -> request ID -> token
}

func newCancelTracker() *cancelTracker {
	return &cancelTracker{tokens: make(map[string]map[string]*Token)}
}

// track registers a token for an in-flight request.
func (c *cancelTracker) track(sessionID, requestID string, cancel context.CancelFunc) *Token {
	token := &Token{sessionID: sessionID, requestID: requestID, cancel: cancel}

	c.mu.Lock()
	defer c.mu.Unlock()
	byRequest, ok := c.tokens[sessionID]
	if !ok {
		byRequest = make(map[string]*Token)
		c.tokens[sessionID] = byRequest
	}
	byRequest[requestID] = token
	return token
}

// requestCancel asks for cooperative cancellation of a request. An unknown or
// already-finished request is a silent no-op, because the race between a
// cancellation notification and normal completion is legal.
func (c *cancelTracker) requestCancel(sessionID, requestID, reason string) bool {
	c.mu.Lock()
	token, ok := c.tokens[sessionID][requestID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return token.requestCancel(reason)
}

// remove terminates and unindexes a token. The dispatcher calls this exactly
// once per tracked request, after the response is decided.
func (c *cancelTracker) remove(sessionID, requestID string) {
	c.mu.Lock()
	byRequest := c.tokens[sessionID]
	token := byRequest[requestID]
	if token != nil {
		delete(byRequest, requestID)
		if len(byRequest) == 0 {
			delete(c.tokens, sessionID)
		}
	}
	c.mu.Unlock()

	if token != nil {
		token.terminate()
	}
}

// cancelSession cancels every in-flight request of a session. Used when the
// session is terminated out from under its requests.
func (c *cancelTracker) cancelSession(sessionID, reason string) {
	c.mu.Lock()
	var tokens []*Token
	for _, token := range c.tokens[sessionID] {
		tokens = append(tokens, token)
	}
	c.mu.Unlock()

	for _, token := range tokens {
		token.requestCancel(reason)
	}
}

// inFlight returns the number of tracked requests across all sessions.
func (c *cancelTracker) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, byRequest := range c.tokens {
		total += len(byRequest)
	}
	return total
}
