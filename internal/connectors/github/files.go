package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// fetchFiles converts the text files of an already-fetched branch tree to
// raw documents, loading blob contents on demand.
func fetchFiles(
	ctx context.Context, client *Client, repo *gh.Repository, tree *gh.Tree, cfg *Config,
) ([]domain.RawDocument, error) {
	owner := repo.GetOwner().GetLogin()
	name := repo.GetName()
	branch := repo.GetDefaultBranch()

	docs := make([]domain.RawDocument, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		if entry.GetType() != "blob" {
			continue
		}

		path := entry.GetPath()
		if !matchesPatterns(path, cfg.FilePatterns) {
			continue
		}
		if isBinaryExtension(path) {
			continue
		}
		if entry.GetSize() > MaxFileBytes {
			continue
		}

		content, err := fetchBlobContent(ctx, client, owner, name, entry.GetSHA())
		if err != nil {
			// Unreadable blobs are skipped, not fatal.
			continue
		}

		docs = append(docs, domain.RawDocument{
			ExternalID:  fileExternalID(owner, name, path),
			Name:        path,
			ContentType: detectFileContentType(path),
			Content:     content,
			ModifiedAt:  repoModifiedAt(repo),
			Metadata: map[string]any{
				"type":   "file",
				"owner":  owner,
				"repo":   name,
				"branch": branch,
				"path":   path,
				"sha":    entry.GetSHA(),
				"html_url": fmt.Sprintf(
					"https://github.com/%s/%s/blob/%s/%s",
					owner, name, branch, path,
				),
			},
		})
	}

	return docs, nil
}

func fetchBlobContent(ctx context.Context, client *Client, owner, repo, sha string) ([]byte, error) {
	blob, err := client.GetBlob(ctx, owner, repo, sha)
	if err != nil {
		return nil, err
	}

	if blob.GetEncoding() == "base64" {
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		return base64.StdEncoding.DecodeString(content)
	}

	return []byte(blob.GetContent()), nil
}

// fileExternalID builds the source-native identifier for a file. Stable
// across content changes so re-fetches update the same document.
func fileExternalID(owner, repo, path string) string {
	return fmt.Sprintf("%s/%s/blob/%s", owner, repo, path)
}

// extContentTypes maps extensions to types not in Go's mime registry.
var extContentTypes = map[string]string{
	".md": "text/markdown", ".markdown": "text/markdown",
	".go": "text/x-go", ".py": "text/x-python", ".rs": "text/x-rust",
	".ts": "text/typescript", ".tsx": "text/typescript-jsx", ".jsx": "text/javascript-jsx",
	".yaml": "text/yaml", ".yml": "text/yaml", ".toml": "text/toml",
	".sh": "text/x-shellscript", ".bash": "text/x-shellscript",
	".sql": "text/x-sql", ".rb": "text/x-ruby", ".java": "text/x-java",
	".kt": "text/x-kotlin", ".swift": "text/x-swift",
}

// detectFileContentType determines the content type from file extension.
func detectFileContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "text/plain"
	}

	// Custom mappings first (Go's registry returns video/mp2t for .ts).
	if t, ok := extContentTypes[strings.ToLower(ext)]; ok {
		return t
	}

	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		if idx := strings.Index(mimeType, ";"); idx != -1 {
			mimeType = strings.TrimSpace(mimeType[:idx])
		}
		return mimeType
	}

	return "text/plain"
}

// matchesPatterns checks a path against glob patterns, by base name and by
// full path. Empty patterns match everything.
func matchesPatterns(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}

var binaryExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".bin": true, ".dat": true, ".db": true, ".sqlite": true,
	".pyc": true, ".class": true, ".o": true, ".a": true,
}

func isBinaryExtension(path string) bool {
	return binaryExts[strings.ToLower(filepath.Ext(path))]
}

// repoModifiedAt is the best-effort modification time for repo-level
// documents.
func repoModifiedAt(repo *gh.Repository) time.Time {
	if t := repo.GetPushedAt().Time; !t.IsZero() {
		return t
	}
	return repo.GetUpdatedAt().Time
}
