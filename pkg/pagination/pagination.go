// Package pagination provides cursor-based paging for list operations.
// Cursors are opaque to clients: a base64-encoded offset that the engine
// validates and decodes on the next call.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/agentwire/agentwire/pkg/protocol"
)

const (
	// DefaultLimit is the page size used when the client does not ask for one.
	DefaultLimit = 50

	// MaxLimit caps the page size a client may request.
	MaxLimit = 200
)

var (
	// ErrInvalidLimit is returned for a negative or oversized limit.
	ErrInvalidLimit = errors.New("pagination limit must be between 0 and MaxLimit")

	// ErrInvalidCursor is returned when a cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

// ValidateParams checks pagination members of a list request. Nil params are
// valid and mean server defaults.
func ValidateParams(params *protocol.PaginationParams) error {
	if params == nil {
		return nil
	}
	if params.Limit < 0 || params.Limit > MaxLimit {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, params.Limit)
	}
	return nil
}

// ApplyDefaults fills in the default limit and caps oversized requests.
func ApplyDefaults(params *protocol.PaginationParams) protocol.PaginationParams {
	var out protocol.PaginationParams
	if params != nil {
		out = *params
	}
	if out.Limit <= 0 {
		out.Limit = DefaultLimit
	}
	if out.Limit > MaxLimit {
		out.Limit = MaxLimit
	}
	return out
}

// EncodeCursor builds an opaque cursor for the given element offset.
func EncodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// DecodeCursor recovers the element offset from a cursor. An empty cursor
// means offset zero.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, ErrInvalidCursor
	}
	return offset, nil
}

// Page slices total elements [0,total) according to params and reports the
// window plus the pagination result members for the response.
func Page(total int, params *protocol.PaginationParams) (start, end int, result protocol.PaginationResult, err error) {
	if err := ValidateParams(params); err != nil {
		return 0, 0, protocol.PaginationResult{}, err
	}
	applied := ApplyDefaults(params)

	start, err = DecodeCursor(applied.Cursor)
	if err != nil {
		return 0, 0, protocol.PaginationResult{}, err
	}
	if start > total {
		start = total
	}
	end = start + applied.Limit
	if end > total {
		end = total
	}

	result = protocol.PaginationResult{TotalCount: total}
	if end < total {
		result.HasMore = true
		result.NextCursor = EncodeCursor(end)
	}
	return start, end, result, nil
}
