package upload

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// fallbackMIMETypes covers extensions the platform MIME database usually
// lacks, mostly source code.
var fallbackMIMETypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".rs":       "text/x-rust",
	".ts":       "text/typescript",
	".tsx":      "text/typescript-jsx",
	".jsx":      "text/javascript-jsx",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/toml",
	".sh":       "text/x-shellscript",
	".bash":     "text/x-shellscript",
	".sql":      "text/x-sql",
}

// detectMIMEType resolves a file's MIME type from its extension. Files
// without an extension are treated as plain text; unknown extensions fall
// back to application/octet-stream.
func detectMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "text/plain"
	}
	if mt, ok := fallbackMIMETypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		// Strip parameters like "; charset=utf-8".
		if i := strings.Index(mt, ";"); i >= 0 {
			mt = mt[:i]
		}
		return strings.TrimSpace(mt)
	}
	return "application/octet-stream"
}

// isIndexable reports whether a MIME type carries text worth chunking.
func isIndexable(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/javascript":
		return true
	}
	return false
}

// isHidden reports whether any element of the path starts with a dot.
// "." and ".." are not considered hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// readDocument loads a file into a RawDocument. The external ID is the
// absolute path; metadata carries the path relative to the sync root.
func readDocument(path, relPath string, info os.FileInfo) (*domain.RawDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return &domain.RawDocument{
		ExternalID:  path,
		Name:        filepath.Base(path),
		ContentType: detectMIMEType(path),
		Content:     content,
		ModifiedAt:  info.ModTime().UTC(),
		Metadata: map[string]any{
			"type":      "upload_file",
			"filename":  filepath.Base(path),
			"extension": strings.TrimPrefix(filepath.Ext(path), "."),
			"path":      relPath,
			"size":      info.Size(),
		},
	}, nil
}
