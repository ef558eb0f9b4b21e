package github

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// CursorVersion is the current cursor schema version.
const CursorVersion = 1

// Cursor tracks sync position across repositories. Files are tracked by
// tree SHA: an unchanged SHA means the whole repository can be skipped.
// Issues are tracked by the timestamp of the last updated issue.
type Cursor struct {
	// Version is the schema version for future migrations.
	Version int `json:"v"`

	// Repos maps repository full name (owner/repo) to its cursor state.
	Repos map[string]RepoCursor `json:"repos"`
}

// RepoCursor tracks sync state for a single repository.
type RepoCursor struct {
	// TreeSHA is the git tree SHA of the last indexed default branch.
	TreeSHA string `json:"tree_sha,omitempty"`

	// IssuesSince is the timestamp of the last updated issue.
	IssuesSince time.Time `json:"issues_since,omitempty"`
}

// NewCursor creates a new empty cursor.
func NewCursor() *Cursor {
	return &Cursor{
		Version: CursorVersion,
		Repos:   make(map[string]RepoCursor),
	}
}

// Encode serializes the cursor to a base64-encoded JSON string.
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor deserializes a cursor. An empty input yields an empty
// cursor; malformed input is ErrInvalidCursor.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return NewCursor(), nil
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}
	if cursor.Repos == nil {
		cursor.Repos = make(map[string]RepoCursor)
	}

	return &cursor, nil
}

// Get returns the cursor for a repository full name.
func (c *Cursor) Get(fullName string) RepoCursor {
	if c.Repos == nil {
		return RepoCursor{}
	}
	return c.Repos[fullName]
}

// Set stores the cursor for a repository full name.
func (c *Cursor) Set(fullName string, rc RepoCursor) {
	if c.Repos == nil {
		c.Repos = make(map[string]RepoCursor)
	}
	c.Repos[fullName] = rc
}
