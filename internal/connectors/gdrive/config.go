package gdrive

import (
	"strconv"
	"strings"
)

// ContentType identifies what content to sync from the drive.
type ContentType string

const (
	// ContentFiles syncs regular text files.
	ContentFiles ContentType = "files"
	// ContentDocs syncs Google Docs (exported to text).
	ContentDocs ContentType = "docs"
	// ContentSheets syncs Google Sheets (exported to CSV text).
	ContentSheets ContentType = "sheets"
)

// DefaultContentTypes are the content types synced by default.
var DefaultContentTypes = []ContentType{ContentFiles, ContentDocs, ContentSheets}

// DefaultPageSize is the files.list page size.
const DefaultPageSize = 100

// Config holds the drive connector configuration.
type Config struct {
	// ContentTypes specifies what types of content to sync.
	ContentTypes []ContentType

	// MimeTypeFilter limits syncing to specific MIME types (optional).
	MimeTypeFilter []string

	// FolderIDs limits syncing to files under specific folders (optional).
	FolderIDs []string

	// PageSize is the page size for list requests.
	PageSize int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ContentTypes: DefaultContentTypes,
		PageSize:     DefaultPageSize,
	}
}

// ParseConfig extracts configuration from an account's config map. Unknown
// content types are ignored rather than rejected so new server-side types
// degrade gracefully.
func ParseConfig(config map[string]string) *Config {
	cfg := DefaultConfig()

	if val := config["content_types"]; val != "" {
		var types []ContentType
		for _, t := range strings.Split(val, ",") {
			ct := ContentType(strings.TrimSpace(t))
			if isValidContentType(ct) {
				types = append(types, ct)
			}
		}
		if len(types) > 0 {
			cfg.ContentTypes = types
		}
	}

	if val := config["mime_types"]; val != "" {
		cfg.MimeTypeFilter = splitTrim(val)
	}

	if val := config["folder_ids"]; val != "" {
		cfg.FolderIDs = splitTrim(val)
	}

	if val := config["page_size"]; val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
			cfg.PageSize = n
		}
	}

	return cfg
}

func splitTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasContentType checks if a content type is enabled.
func (c *Config) HasContentType(ct ContentType) bool {
	for _, t := range c.ContentTypes {
		if t == ct {
			return true
		}
	}
	return false
}

func isValidContentType(ct ContentType) bool {
	switch ct {
	case ContentFiles, ContentDocs, ContentSheets:
		return true
	default:
		return false
	}
}
