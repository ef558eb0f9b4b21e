package upload

import (
	"errors"
	"strconv"
	"time"
)

// ErrInvalidCursor indicates a cursor that cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor serialises a watermark as nanoseconds since the epoch.
func EncodeCursor(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

// DecodeCursor parses a watermark cursor. An empty cursor decodes to the
// zero time, which makes the sync behave like a full sync.
func DecodeCursor(cursor string) (time.Time, error) {
	if cursor == "" {
		return time.Time{}, nil
	}
	nanos, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return time.Time{}, ErrInvalidCursor
	}
	return time.Unix(0, nanos), nil
}
