package github

import (
	"path/filepath"
	"strings"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// ContentType represents the type of content to index.
type ContentType string

const (
	ContentFiles  ContentType = "files"
	ContentIssues ContentType = "issues"
)

// AllContentTypes returns all supported content types.
func AllContentTypes() []ContentType {
	return []ContentType{ContentFiles, ContentIssues}
}

// MaxFileBytes is the largest file fetched from a tree. Bigger blobs are
// skipped.
const MaxFileBytes = 1024 * 1024

// Config holds the parsed configuration for a github account.
type Config struct {
	// ContentTypes specifies what content to index.
	// Default: files and issues.
	ContentTypes []ContentType

	// Repos restricts syncing to matching "owner/name" patterns
	// ("myorg/*", "myorg/docs"). Empty = every accessible repository.
	Repos []string

	// FilePatterns are glob patterns for file filtering. Empty = all files.
	FilePatterns []string
}

// ParseConfig parses an account's config map. All keys are optional; the
// default indexes files and issues of every accessible repository.
func ParseConfig(config map[string]string) (*Config, error) {
	cfg := &Config{
		ContentTypes: AllContentTypes(),
	}

	if raw, ok := config["content_types"]; ok && raw != "" {
		types, err := parseContentTypes(raw)
		if err != nil {
			return nil, err
		}
		cfg.ContentTypes = types
	}

	if raw, ok := config["repos"]; ok && raw != "" {
		cfg.Repos = splitList(raw)
		for _, pattern := range cfg.Repos {
			if !strings.Contains(pattern, "/") {
				return nil, &domain.ValidationError{Fields: map[string]string{
					"repos": "pattern " + pattern + " must be owner/name",
				}}
			}
		}
	}

	if raw, ok := config["file_patterns"]; ok && raw != "" {
		cfg.FilePatterns = splitList(raw)
	}

	return cfg, nil
}

func parseContentTypes(raw string) ([]ContentType, error) {
	valid := map[string]ContentType{
		"files":  ContentFiles,
		"issues": ContentIssues,
	}

	var types []ContentType
	for _, part := range splitList(strings.ToLower(raw)) {
		ct, ok := valid[part]
		if !ok {
			return nil, &domain.ValidationError{Fields: map[string]string{
				"content_types": "unknown content type " + part,
			}}
		}
		types = append(types, ct)
	}

	if len(types) == 0 {
		return AllContentTypes(), nil
	}
	return types, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
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

// wantsRepo checks a repository full name against the allowlist patterns.
func (c *Config) wantsRepo(fullName string) bool {
	if len(c.Repos) == 0 {
		return true
	}
	for _, pattern := range c.Repos {
		if matched, err := filepath.Match(pattern, fullName); err == nil && matched {
			return true
		}
	}
	return false
}
