package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwire/agentwire/pkg/protocol"
)

func TestPageDefaults(t *testing.T) {
	start, end, result, err := Page(10, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, start)
	assert.Equal(t, 10, end)
	assert.False(t, result.HasMore)
	assert.Empty(t, result.NextCursor)
	assert.Equal(t, 10, result.TotalCount)
}

func TestPageWindows(t *testing.T) {
	params := &protocol.PaginationParams{Limit: 3}

	start, end, result, err := Page(8, params)
	require.NoError(t, err)
	assert.Equal(t, 0, start)
	assert.Equal(t, 3, end)
	require.True(t, result.HasMore)

	// Follow the cursor to the second page.
	params.Cursor = result.NextCursor
	start, end, result, err = Page(8, params)
	require.NoError(t, err)
	assert.Equal(t, 3, start)
	assert.Equal(t, 6, end)
	require.True(t, result.HasMore)

	// Last page is short and final.
	params.Cursor = result.NextCursor
	start, end, result, err = Page(8, params)
	require.NoError(t, err)
	assert.Equal(t, 6, start)
	assert.Equal(t, 8, end)
	assert.False(t, result.HasMore)
	assert.Empty(t, result.NextCursor)
}

func TestPageCursorBeyondTotal(t *testing.T) {
	cursor := EncodeCursor(50)
	start, end, result, err := Page(5, &protocol.PaginationParams{Cursor: cursor})
	require.NoError(t, err)
	assert.Equal(t, 5, start)
	assert.Equal(t, 5, end)
	assert.False(t, result.HasMore)
}

func TestInvalidCursor(t *testing.T) {
	_, _, _, err := Page(5, &protocol.PaginationParams{Cursor: "not base64!!"})
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// Negative offsets smuggled through valid base64 are rejected too.
	_, err = DecodeCursor(EncodeCursor(0))
	assert.NoError(t, err)
	_, err = DecodeCursor("LTU=") // "-5"
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestInvalidLimit(t *testing.T) {
	_, _, _, err := Page(5, &protocol.PaginationParams{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, _, _, err = Page(5, &protocol.PaginationParams{Limit: MaxLimit + 1})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestApplyDefaultsCaps(t *testing.T) {
	applied := ApplyDefaults(nil)
	assert.Equal(t, DefaultLimit, applied.Limit)

	applied = ApplyDefaults(&protocol.PaginationParams{Limit: 7})
	assert.Equal(t, 7, applied.Limit)
}
