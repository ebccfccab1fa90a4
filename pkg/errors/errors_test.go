package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      EngineError
		code     int
		category Category
	}{
		{"parse error", ParseError(fmt.Errorf("bad json")), CodeParseError, CategoryProtocol},
		{"invalid request", InvalidRequest("no id"), CodeInvalidRequest, CategoryProtocol},
		{"method not found", MethodNotFound("nope"), CodeMethodNotFound, CategoryProtocol},
		{"invalid params", InvalidParams("ping", "bad"), CodeInvalidParams, CategoryValidation},
		{"missing param", MissingParam("resources/read", "uri"), CodeInvalidParams, CategoryValidation},
		{"internal", Internal("dispatch", fmt.Errorf("boom")), CodeInternalError, CategoryInternal},
		{"not initialized", ServerNotInitialized("tools/call"), CodeServerNotInitialized, CategoryProtocol},
		{"session not found", SessionNotFound("s1"), CodeSessionNotFound, CategoryNotFound},
		{"resource not found", ResourceNotFound("x://y"), CodeResourceNotFound, CategoryNotFound},
		{"cancelled", RequestCancelled("r1"), CodeRequestCancelled, CategoryCancelled},
		{"stream open", StreamAlreadyOpen("s1"), CodeStreamAlreadyOpen, CategoryTransport},
		{"invalid cursor", InvalidCursor(fmt.Errorf("bad base64")), CodeInvalidCursor, CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code())
			assert.Equal(t, tt.category, tt.err.Category())
			assert.True(t, IsCode(tt.err, tt.code))
			assert.True(t, IsCategory(tt.err, tt.category))
		})
	}
}

func TestResourceNotFoundCarriesURI(t *testing.T) {
	err := ResourceNotFound("users://alice/profile")
	assert.Contains(t, err.Message(), "users://alice/profile")

	data, ok := err.Data().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "users://alice/profile", data["uri"])
}

func TestWithDetailAppends(t *testing.T) {
	base := InvalidRequest("first")
	detailed := base.WithDetail("second")

	assert.Contains(t, detailed.Detail(), "first")
	assert.Contains(t, detailed.Detail(), "second")
	// The original is untouched.
	assert.Equal(t, "first", base.Detail())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := Wrap(cause, CodeInternalError, "wrapped", CategoryInternal, SeverityError)
	assert.Equal(t, cause, err.Unwrap())
}

func TestAsEngineError(t *testing.T) {
	_, ok := AsEngineError(fmt.Errorf("plain"))
	assert.False(t, ok)

	ee, ok := AsEngineError(MethodNotFound("x"))
	require.True(t, ok)
	assert.Equal(t, CodeMethodNotFound, ee.Code())

	_, ok = AsEngineError(nil)
	assert.False(t, ok)
}

func TestCodeInfoRegistry(t *testing.T) {
	info, ok := InfoForCode(CodeRequestCancelled)
	require.True(t, ok)
	assert.Equal(t, CategoryCancelled, info.Category)
	assert.NotEmpty(t, NameForCode(CodeRequestCancelled))

	_, ok = InfoForCode(-99999)
	assert.False(t, ok)
}
