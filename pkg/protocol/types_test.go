package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCapabilitiesKeepUnknownMembers(t *testing.T) {
	raw := []byte(`{
		"roots": {"listChanged": true},
		"sampling": {},
		"experimental": {"batching": true},
		"elicitation": {}
	}`)

	var caps ClientCapabilities
	require.NoError(t, json.Unmarshal(raw, &caps))

	require.NotNil(t, caps.Roots)
	assert.True(t, caps.Roots.ListChanged)
	assert.NotNil(t, caps.Sampling)

	require.Len(t, caps.Extra, 2)
	assert.JSONEq(t, `{"batching": true}`, string(caps.Extra["experimental"]))
	assert.Contains(t, caps.Extra, "elicitation")
}

func TestClientCapabilitiesKnownMembersOnly(t *testing.T) {
	var caps ClientCapabilities
	require.NoError(t, json.Unmarshal([]byte(`{"roots": {}}`), &caps))
	assert.Nil(t, caps.Extra)
}
