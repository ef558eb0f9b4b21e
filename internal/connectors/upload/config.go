package upload

import (
	"path/filepath"
	"strings"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// MaxFileBytes is the largest file read from disk. Bigger files are
// skipped.
const MaxFileBytes = 1024 * 1024

// Config holds the parsed configuration for an upload account.
type Config struct {
	// Root is the directory to index. Required.
	Root string

	// Patterns are glob patterns matched against the path relative to
	// Root. Empty = all files.
	Patterns []string
}

// ParseConfig parses an account's config map. "path" is required.
func ParseConfig(config map[string]string) (*Config, error) {
	root := config["path"]
	if root == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{
			"path": "required",
		}}
	}

	cfg := &Config{Root: root}
	if raw, ok := config["patterns"]; ok && raw != "" {
		cfg.Patterns = splitList(raw)
	}
	return cfg, nil
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

// matchesPatterns checks a relative path against the configured globs.
// Patterns match either the full relative path or the base name.
func (c *Config) matchesPatterns(relPath string) bool {
	if len(c.Patterns) == 0 {
		return true
	}
	base := filepath.Base(relPath)
	for _, pattern := range c.Patterns {
		if ok, err := filepath.Match(pattern, relPath); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}
