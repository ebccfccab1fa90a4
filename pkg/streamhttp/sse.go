package streamhttp

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// sseStream adapts one Server-Sent Events response to the session stream
// interface. Writes are serialized; each event carries a unique ID so clients
// can detect gaps, though replay is not offered.
type sseStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	ready   chan struct{}
	done    chan struct{}
}

func newSSEStream(w http.ResponseWriter, flusher http.Flusher) *sseStream {
	return &sseStream{
		w:       w,
		flusher: flusher,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// start releases senders. The stream is attached to its session before the
// response headers go out, so until start is called no Send may touch the
// ResponseWriter.
func (s *sseStream) start() {
	close(s.ready)
}

// Send writes one envelope payload as an SSE data event. It blocks until the
// handler has written the response headers.
func (s *sseStream) Send(payload []byte) error {
	select {
	case <-s.ready:
	case <-s.done:
		return fmt.Errorf("stream closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if _, err := fmt.Fprintf(s.w, "id: %s\ndata: %s\n\n", uuid.NewString(), payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// keepAlive writes an SSE comment line so idle proxies keep the connection
// open. Failures surface like Send failures.
func (s *sseStream) keepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close marks the stream finished and releases the handler goroutine.
func (s *sseStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// Done is closed when the stream has been shut down from the session side.
func (s *sseStream) Done() <-chan struct{} {
	return s.done
}
