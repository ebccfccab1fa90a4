package streamhttp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwire/agentwire/pkg/broadcast"
	"github.com/agentwire/agentwire/pkg/engine"
	"github.com/agentwire/agentwire/pkg/errors"
	"github.com/agentwire/agentwire/pkg/protocol"
	"github.com/agentwire/agentwire/pkg/registry"
	"github.com/agentwire/agentwire/pkg/session"
)

type fixture struct {
	handler     *Handler
	sessions    *session.Manager
	broadcaster *broadcast.Broadcaster
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.RegisterTool(
		protocol.Tool{Name: "echo", Description: "echoes arguments"},
		func(ctx context.Context, req registry.ToolRequest) (*protocol.CallToolResult, error) {
			return protocol.TextContent(string(req.Arguments)), nil
		},
		nil,
	))

	sessions := session.NewManager()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sessions.Stop(ctx)
	})

	negotiator := session.NewNegotiator(
		protocol.ServerInfo{Name: "test-server", Version: "0.1.0"},
		protocol.ServerCapabilities{Tools: &protocol.ToolsCapability{ListChanged: true}},
	)
	broadcaster := broadcast.New(sessions)
	eng := engine.New(reg, sessions, negotiator, broadcaster)

	return &fixture{
		handler:     NewHandler(eng, sessions, opts...),
		sessions:    sessions,
		broadcaster: broadcaster,
	}
}

func rpcBody(t *testing.T, id interface{}, method string, params interface{}) []byte {
	t.Helper()
	var body []byte
	var err error
	if id == nil {
		notif, nerr := protocol.NewNotification(method, params)
		require.NoError(t, nerr)
		body, err = json.Marshal(notif)
	} else {
		req, rerr := protocol.NewRequest(id, method, params)
		require.NoError(t, rerr)
		body, err = json.Marshal(req)
	}
	require.NoError(t, err)
	return body
}

func (f *fixture) post(t *testing.T, sessionID string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *protocol.Response {
	t.Helper()
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

// initSession performs the handshake over HTTP and returns the minted ID.
func (f *fixture) initSession(t *testing.T) string {
	t.Helper()
	rec := f.post(t, "", rpcBody(t, 1, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.LatestProtocolVersion,
		ClientInfo:      &protocol.ClientInfo{Name: "test-client", Version: "1.0.0"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	rec = f.post(t, sessionID, rpcBody(t, nil, protocol.MethodInitialized, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	return sessionID
}

func TestPostInitializeMintsSession(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "", rpcBody(t, 1, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.LatestProtocolVersion,
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	sessionID := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID)
	_, ok := f.sessions.Get(sessionID)
	assert.True(t, ok)

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, protocol.LatestProtocolVersion, result.ProtocolVersion)
}

func TestPostSessionHeaderOnlyOnFirstResponse(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initSession(t)

	rec := f.post(t, sessionID, rpcBody(t, 2, protocol.MethodPing, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(SessionHeader))
}

func TestPostUnknownSession(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "no-such-session", rpcBody(t, 1, protocol.MethodPing, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.CodeSessionNotFound, resp.Error.Code)
	assert.Nil(t, resp.ID)
}

func TestPostNonInitializeWithoutSession(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "", rpcBody(t, 1, protocol.MethodPing, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.CodeSessionNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, SessionHeader)
}

func TestPostRequiresJSONContentType(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestPostBodyTooLarge(t *testing.T) {
	f := newFixture(t, WithMaxBodyBytes(64))

	big := bytes.Repeat([]byte("a"), 128)
	rec := f.post(t, "", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPostToolCall(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initSession(t)

	rec := f.post(t, sessionID, rpcBody(t, 3, protocol.MethodCallTool, protocol.CallToolParams{
		Name:      "echo",
		Arguments: json.RawMessage(`{"greeting":"hi"}`),
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	var result protocol.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.JSONEq(t, `{"greeting":"hi"}`, result.Content[0].Text)
}

func TestGetRequiresEventStreamAccept(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initSession(t)

	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	req.Header.Set(SessionHeader, sessionID)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestGetSessionValidation(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/rpc", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(SessionHeader, "no-such-session")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// openStream issues the SSE GET against a live test server and returns the
// response once headers have arrived.
func openStream(t *testing.T, server *httptest.Server, sessionID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(SessionHeader, sessionID)

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestSSEStreamDelivery(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	sessionID := f.initSession(t)

	resp := openStream(t, server, sessionID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sess, ok := f.sessions.Get(sessionID)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return sess.HasStream()
	}, time.Second, 5*time.Millisecond)

	f.broadcaster.ToolsChanged()

	reader := bufio.NewReader(resp.Body)
	var dataLine string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(strings.TrimRight(line, "\n"), "data: ")
			break
		}
	}

	msg, err := protocol.ParseMessage([]byte(dataLine))
	require.NoError(t, err)
	require.Equal(t, protocol.KindNotification, msg.Kind)
	assert.Equal(t, protocol.MethodToolsChanged, msg.Notification.Method)
}

func TestPublishDuringStreamOpen(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	sessionID := f.initSession(t)
	sess, ok := f.sessions.Get(sessionID)
	require.True(t, ok)

	notif, err := protocol.NewNotification(protocol.MethodToolsChanged, nil)
	require.NoError(t, err)
	payload, err := json.Marshal(notif)
	require.NoError(t, err)

	// Hammer the session with publishes while the stream is being opened.
	// No publish may touch the ResponseWriter before the handler has
	// written the SSE headers.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = sess.Publish(payload)
			}
		}
	}()

	resp := openStream(t, server, sessionID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Once open, the publishes come through as well-formed events.
	reader := bufio.NewReader(resp.Body)
	var dataLine string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(strings.TrimRight(line, "\n"), "data: ")
			break
		}
	}
	close(stop)
	wg.Wait()

	msg, err := protocol.ParseMessage([]byte(dataLine))
	require.NoError(t, err)
	assert.Equal(t, protocol.MethodToolsChanged, msg.Notification.Method)
}

func TestSecondStreamConflicts(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	sessionID := f.initSession(t)

	first := openStream(t, server, sessionID)
	defer first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	sess, ok := f.sessions.Get(sessionID)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return sess.HasStream()
	}, time.Second, 5*time.Millisecond)

	second := openStream(t, server, sessionID)
	defer second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initSession(t)

	req := httptest.NewRequest(http.MethodDelete, "/rpc", nil)
	req.Header.Set(SessionHeader, sessionID)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := f.sessions.Get(sessionID)
	assert.False(t, ok)

	// A second delete finds nothing.
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// And so does a delete with no header at all.
	req = httptest.NewRequest(http.MethodDelete, "/rpc", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/rpc", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header().Get("Allow"), "POST")
}

func TestOptionsPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), SessionHeader)
}

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{"no origin header", nil, "", true},
		{"loopback by default", nil, "http://localhost:3000", true},
		{"loopback ipv4 by default", nil, "http://127.0.0.1:8080", true},
		{"public rejected by default", nil, "https://evil.example.com", false},
		{"allowlisted origin", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"allowlist is case-insensitive", []string{"https://App.Example.com"}, "https://app.example.com", true},
		{"unlisted origin", []string{"https://app.example.com"}, "https://other.example.com", false},
		{"wildcard", []string{"*"}, "https://anything.example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithAllowedOrigins(tt.origins))

			req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(
				rpcBody(t, 1, protocol.MethodInitialize, protocol.InitializeParams{
					ProtocolVersion: protocol.LatestProtocolVersion,
				})))
			req.Header.Set("Content-Type", "application/json")
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)

			if tt.allowed {
				assert.Equal(t, http.StatusOK, rec.Code)
			} else {
				assert.Equal(t, http.StatusForbidden, rec.Code)
			}
		})
	}
}
