package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageClassification(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    MessageKind
	}{
		{
			name:    "request",
			payload: `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			kind:    KindRequest,
		},
		{
			name:    "request with string id",
			payload: `{"jsonrpc":"2.0","id":"req-1","method":"tools/call","params":{"name":"echo"}}`,
			kind:    KindRequest,
		},
		{
			name:    "notification",
			payload: `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			kind:    KindNotification,
		},
		{
			name:    "response with result",
			payload: `{"jsonrpc":"2.0","id":1,"result":{}}`,
			kind:    KindResponse,
		},
		{
			name:    "response with error",
			payload: `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`,
			kind:    KindResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, msg.Kind)
		})
	}
}

func TestParseMessageRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"malformed json", `{"jsonrpc":`, ErrMalformedJSON},
		{"missing version", `{"id":1,"method":"ping"}`, ErrBadVersionTag},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, ErrBadVersionTag},
		{"no method no result", `{"jsonrpc":"2.0"}`, ErrMissingMethod},
		{"id without method or result", `{"jsonrpc":"2.0","id":7}`, ErrMissingMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest("r1", MethodReadResource, ReadResourceParams{URI: "clock://now"})
	require.NoError(t, err)

	data, err := json.Marshal(req)
	require.NoError(t, err)

	msg, err := ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, KindRequest, msg.Kind)
	assert.Equal(t, MethodReadResource, msg.Request.Method)
	assert.Equal(t, "r1", msg.Request.ID)

	var params ReadResourceParams
	require.NoError(t, json.Unmarshal(msg.Request.Params, &params))
	assert.Equal(t, "clock://now", params.URI)
}

func TestErrorResponse(t *testing.T) {
	resp, err := NewErrorResponse(3, -32601, "Method not found", map[string]string{"method": "nope"})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Nil(t, resp.Result)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	msg, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, KindResponse, msg.Kind)
}

func TestNotificationHasNoID(t *testing.T) {
	notif, err := NewNotification(MethodProgress, ProgressParams{ProgressToken: "r1", Progress: 0.5})
	require.NoError(t, err)

	data, err := json.Marshal(notif)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)
	assert.True(t, IsNotification(data))
	assert.False(t, IsRequest(data))
}

func TestLogLevelOrdering(t *testing.T) {
	assert.True(t, LogLevelError.AtLeast(LogLevelWarning))
	assert.True(t, LogLevelWarning.AtLeast(LogLevelWarning))
	assert.False(t, LogLevelInfo.AtLeast(LogLevelWarning))
	assert.True(t, LogLevelEmergency.AtLeast(LogLevelDebug))

	assert.True(t, LogLevelNotice.Valid())
	assert.False(t, LogLevel("verbose").Valid())

	// Unknown levels always filter out.
	assert.False(t, LogLevel("verbose").AtLeast(LogLevelDebug))
}
