package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gh "github.com/google/go-github/v80/github"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

type mockTokenProvider struct {
	token string
	err   error
}

func (p *mockTokenProvider) GetToken(_ context.Context) (string, error) {
	return p.token, p.err
}

func (p *mockTokenProvider) IsAuthenticated() bool {
	return p.token != ""
}

func newTestConnector(t *testing.T, config map[string]string) *Connector {
	t.Helper()
	account := &domain.Account{
		ID:         "acct-1",
		SourceType: "github",
		Config:     config,
	}
	c, err := New(account, &mockTokenProvider{token: "test-token"}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	t.Run("creates connector", func(t *testing.T) {
		c := newTestConnector(t, nil)

		assert.Equal(t, "github", c.Type())
	})

	t.Run("implements Connector interface", func(t *testing.T) {
		var _ driven.Connector = newTestConnector(t, nil)
	})

	t.Run("rejects malformed repo pattern", func(t *testing.T) {
		account := &domain.Account{Config: map[string]string{"repos": "no-slash"}}

		_, err := New(account, nil, zerolog.Nop())

		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestConnector_Capabilities(t *testing.T) {
	caps := newTestConnector(t, nil).Capabilities()

	assert.True(t, caps.SupportsIncremental)
	assert.True(t, caps.SupportsCursorReturn)
	assert.True(t, caps.SupportsRateLimiting)
	assert.True(t, caps.RequiresAuth)
	assert.False(t, caps.SupportsWatch)
}

func TestConnector_Close(t *testing.T) {
	t.Run("close is idempotent", func(t *testing.T) {
		c := newTestConnector(t, nil)

		assert.NoError(t, c.Close())
		assert.NoError(t, c.Close())
	})

	t.Run("sync after close fails", func(t *testing.T) {
		c := newTestConnector(t, nil)
		require.NoError(t, c.Close())

		changes, errs := c.Sync(context.Background(), &domain.Account{ID: "a"}, domain.SyncRequest{})

		for range changes {
		}
		err := <-errs
		assert.ErrorIs(t, err, domain.ErrConnectorClosed)
	})
}

func TestConnector_Authenticate(t *testing.T) {
	t.Run("missing token fails validation", func(t *testing.T) {
		c := newTestConnector(t, nil)

		cred, err := c.Authenticate(context.Background(), map[string]string{})

		assert.Nil(t, cred)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestParseConfig(t *testing.T) {
	t.Run("defaults to all content types", func(t *testing.T) {
		cfg, err := ParseConfig(nil)

		require.NoError(t, err)
		assert.True(t, cfg.HasContentType(ContentFiles))
		assert.True(t, cfg.HasContentType(ContentIssues))
	})

	t.Run("parses explicit content types", func(t *testing.T) {
		cfg, err := ParseConfig(map[string]string{"content_types": "files"})

		require.NoError(t, err)
		assert.True(t, cfg.HasContentType(ContentFiles))
		assert.False(t, cfg.HasContentType(ContentIssues))
	})

	t.Run("rejects unknown content type", func(t *testing.T) {
		cfg, err := ParseConfig(map[string]string{"content_types": "files,wikis"})

		assert.Nil(t, cfg)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("parses repo allowlist and file patterns", func(t *testing.T) {
		cfg, err := ParseConfig(map[string]string{
			"repos":         "myorg/*, other/docs",
			"file_patterns": "*.go,*.md",
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"myorg/*", "other/docs"}, cfg.Repos)
		assert.Equal(t, []string{"*.go", "*.md"}, cfg.FilePatterns)
	})
}

func TestConfig_WantsRepo(t *testing.T) {
	tests := []struct {
		name     string
		repos    []string
		fullName string
		want     bool
	}{
		{"empty allowlist matches all", nil, "anyone/anything", true},
		{"exact match", []string{"myorg/docs"}, "myorg/docs", true},
		{"wildcard match", []string{"myorg/*"}, "myorg/api", true},
		{"no match", []string{"myorg/*"}, "other/api", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Repos: tt.repos}
			assert.Equal(t, tt.want, cfg.wantsRepo(tt.fullName))
		})
	}
}

func TestCursor(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		original := NewCursor()
		original.Set("myorg/myrepo", RepoCursor{
			TreeSHA:     "abc123",
			IssuesSince: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})

		decoded, err := DecodeCursor(original.Encode())

		require.NoError(t, err)
		assert.Equal(t, "abc123", decoded.Get("myorg/myrepo").TreeSHA)
		assert.True(t, decoded.Get("myorg/myrepo").IssuesSince.Equal(
			time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("empty string yields empty cursor", func(t *testing.T) {
		cursor, err := DecodeCursor("")

		require.NoError(t, err)
		assert.Empty(t, cursor.Repos)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := DecodeCursor("not-valid-base64!!!")

		assert.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := DecodeCursor(base64.StdEncoding.EncodeToString([]byte("not json")))

		assert.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("unknown repo yields zero value", func(t *testing.T) {
		assert.Equal(t, RepoCursor{}, NewCursor().Get("unknown/repo"))
	})
}

func TestMatchesPatterns(t *testing.T) {
	t.Run("empty patterns match everything", func(t *testing.T) {
		assert.True(t, matchesPatterns("any/path.go", nil))
	})

	t.Run("extension patterns", func(t *testing.T) {
		patterns := []string{"*.go", "*.md"}

		assert.True(t, matchesPatterns("cmd/main.go", patterns))
		assert.True(t, matchesPatterns("README.md", patterns))
		assert.False(t, matchesPatterns("package.json", patterns))
	})

	t.Run("full path patterns", func(t *testing.T) {
		patterns := []string{"cmd/*"}

		assert.True(t, matchesPatterns("cmd/main.go", patterns))
		assert.False(t, matchesPatterns("internal/main.go", patterns))
	})
}

func TestIsBinaryExtension(t *testing.T) {
	assert.True(t, isBinaryExtension("file.exe"))
	assert.True(t, isBinaryExtension("file.PNG"))
	assert.False(t, isBinaryExtension("file.go"))
	assert.False(t, isBinaryExtension("Makefile"))
}

func TestDetectFileContentType(t *testing.T) {
	assert.Equal(t, "text/markdown", detectFileContentType("README.md"))
	assert.Equal(t, "text/x-go", detectFileContentType("main.go"))
	assert.Equal(t, "text/yaml", detectFileContentType("config.yml"))
	assert.Equal(t, "text/plain", detectFileContentType("Makefile"))
}

func TestRenderIssue(t *testing.T) {
	issue := &gh.Issue{
		Number: gh.Ptr(42),
		Title:  gh.Ptr("Crash on startup"),
		Body:   gh.Ptr("It crashes."),
		State:  gh.Ptr("open"),
		User:   &gh.User{Login: gh.Ptr("octocat")},
		Labels: []*gh.Label{{Name: gh.Ptr("bug")}},
	}

	text := renderIssue(issue)

	assert.Contains(t, text, "# Crash on startup")
	assert.Contains(t, text, "Author: octocat")
	assert.Contains(t, text, "It crashes.")
	assert.Contains(t, text, "Labels: bug")
	// Paragraph break between header and body, for the chunker.
	assert.Contains(t, text, "\n\n")
}

func TestRateLimiter(t *testing.T) {
	t.Run("starts with full quota", func(t *testing.T) {
		rl := NewRateLimiter()

		assert.Equal(t, GitHubRateLimit, rl.Limit())
		assert.Equal(t, GitHubRateLimit, rl.Remaining())
	})

	t.Run("updates from response headers", func(t *testing.T) {
		rl := NewRateLimiter()
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set(HeaderRateRemaining, "100")
		resp.Header.Set(HeaderRateLimit, "5000")

		rl.UpdateFromResponse(resp)

		assert.Equal(t, 100, rl.Remaining())
		assert.Equal(t, 5000, rl.Limit())
	})

	t.Run("429 yields rate limit error", func(t *testing.T) {
		rl := NewRateLimiter()
		resp := &http.Response{StatusCode: 429, Header: http.Header{}}
		resp.Header.Set(HeaderRetryAfter, "60")

		err := rl.CheckRateLimit(resp)

		require.Error(t, err)
		assert.True(t, domain.IsRateLimited(err))
		var rle *domain.RateLimitError
		require.ErrorAs(t, err, &rle)
		assert.Equal(t, "github", rle.Provider)
		assert.False(t, rle.RetryAfter.IsZero())
	})

	t.Run("200 passes", func(t *testing.T) {
		rl := NewRateLimiter()
		resp := &http.Response{StatusCode: 200, Header: http.Header{}}

		assert.NoError(t, rl.CheckRateLimit(resp))
	})

	t.Run("wait respects cancellation", func(t *testing.T) {
		rl := NewRateLimiter()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// First token is available immediately; burn it so Wait blocks.
		_ = rl.bucket.Allow()

		assert.Error(t, rl.Wait(ctx))
	})
}

func TestFetchFilesUsesProvidedTree(t *testing.T) {
	var treeCalls, blobCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/git/trees/"):
			treeCalls++
			http.Error(w, "tree already fetched by caller", http.StatusInternalServerError)
		case strings.Contains(r.URL.Path, "/git/blobs/"):
			blobCalls++
			content := base64.StdEncoding.EncodeToString([]byte("package main\n"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"sha":"blob-1","encoding":"base64","content":%q}`, content)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ghc := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	ghc.BaseURL = base
	client := &Client{gh: ghc, rateLimiter: NewRateLimiter()}

	repo := &gh.Repository{
		Owner:         &gh.User{Login: gh.Ptr("tidemark")},
		Name:          gh.Ptr("harvest"),
		DefaultBranch: gh.Ptr("main"),
	}
	tree := &gh.Tree{
		SHA: gh.Ptr("tree-1"),
		Entries: []*gh.TreeEntry{
			{Path: gh.Ptr("main.go"), Type: gh.Ptr("blob"), SHA: gh.Ptr("blob-1"), Size: gh.Ptr(13)},
			{Path: gh.Ptr("vendor"), Type: gh.Ptr("tree"), SHA: gh.Ptr("sub-1")},
			{Path: gh.Ptr("logo.png"), Type: gh.Ptr("blob"), SHA: gh.Ptr("blob-2"), Size: gh.Ptr(10)},
		},
	}
	cfg, err := ParseConfig(map[string]string{})
	require.NoError(t, err)

	docs, err := fetchFiles(context.Background(), client, repo, tree, cfg)
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "main.go", docs[0].Name)
	assert.Equal(t, []byte("package main\n"), docs[0].Content)
	assert.Equal(t, 1, blobCalls, "only the matching blob is fetched")
	assert.Zero(t, treeCalls, "the caller's tree is reused")
}

func TestClientWrapError(t *testing.T) {
	t.Run("429 error response maps to rate limit error", func(t *testing.T) {
		c := NewClient(&mockTokenProvider{token: "test-token"})
		resp := &http.Response{StatusCode: 429, Header: http.Header{}}
		resp.Header.Set(HeaderRetryAfter, "30")
		ghErr := &gh.ErrorResponse{Response: resp, Message: "too many requests"}

		err := c.wrapError(ghErr, "list repos")

		var rle *domain.RateLimitError
		require.ErrorAs(t, err, &rle)
		assert.Equal(t, "github", rle.Provider)
		assert.False(t, rle.RetryAfter.IsZero())
	})

	t.Run("404 error response maps to api error", func(t *testing.T) {
		c := NewClient(&mockTokenProvider{token: "test-token"})
		resp := &http.Response{StatusCode: 404, Header: http.Header{}}
		ghErr := &gh.ErrorResponse{Response: resp, Message: "not found"}

		err := c.wrapError(ghErr, "get tree")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.StatusCode)
	})
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"404 is not found", &APIError{StatusCode: 404}, IsNotFound, true},
		{"ErrRepoNotFound is not found", ErrRepoNotFound, IsNotFound, true},
		{"403 is not not-found", &APIError{StatusCode: 403}, IsNotFound, false},
		{"401 is unauthorized", &APIError{StatusCode: 401}, IsUnauthorized, true},
		{"404 is not unauthorized", &APIError{StatusCode: 404}, IsUnauthorized, false},
		{"403 is forbidden", &APIError{StatusCode: 403}, IsForbidden, true},
		{"generic error matches nothing", errors.New("boom"), IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}
