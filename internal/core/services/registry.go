package services

import (
	"fmt"
	"sort"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// ConfigKey describes one configuration key a source type accepts.
type ConfigKey struct {
	Key         string
	Label       string
	Description string
	Required    bool
}

// ConnectorType is the static metadata for one source type.
type ConnectorType struct {
	ID           string
	Name         string
	Description  string
	RequiresAuth bool
	ConfigKeys   []ConfigKey
}

// Registry provides information about the available source types and
// validates account configuration against them before registration.
type Registry struct {
	types map[string]ConnectorType
}

// NewRegistry creates a registry with the built-in source types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]ConnectorType)}
	r.register(githubType())
	r.register(gdriveType())
	r.register(uploadType())
	return r
}

func (r *Registry) register(t ConnectorType) {
	r.types[t.ID] = t
}

// Get returns the metadata for a source type.
func (r *Registry) Get(id string) (ConnectorType, error) {
	t, ok := r.types[id]
	if !ok {
		return ConnectorType{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, id)
	}
	return t, nil
}

// List returns all source types, sorted by ID.
func (r *Registry) List() []ConnectorType {
	out := make([]ConnectorType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateConfig checks an account config map against the source type's
// declared keys. Missing required keys are reported together.
func (r *Registry) ValidateConfig(sourceType string, config map[string]string) error {
	t, err := r.Get(sourceType)
	if err != nil {
		return err
	}

	missing := map[string]string{}
	for _, key := range t.ConfigKeys {
		if key.Required && config[key.Key] == "" {
			missing[key.Key] = "required"
		}
	}
	if len(missing) > 0 {
		return &domain.ValidationError{Fields: missing}
	}
	return nil
}

func githubType() ConnectorType {
	return ConnectorType{
		ID:           "github",
		Name:         "GitHub",
		Description:  "Index repository files and issues from GitHub",
		RequiresAuth: true,
		ConfigKeys: []ConfigKey{
			{Key: "token", Label: "Access Token", Description: "Personal access token with repo scope", Required: true},
			{Key: "repos", Label: "Repositories", Description: "owner/name patterns to include (e.g., myorg/*)"},
			{Key: "content_types", Label: "Content Types", Description: "files, issues, or both"},
			{Key: "file_patterns", Label: "File Patterns", Description: "Glob patterns to match (e.g., *.md,*.go)"},
		},
	}
}

func gdriveType() ConnectorType {
	return ConnectorType{
		ID:           "gdrive",
		Name:         "Google Drive",
		Description:  "Index files, documents and spreadsheets from Google Drive",
		RequiresAuth: true,
		ConfigKeys: []ConfigKey{
			{Key: "access_token", Label: "Access Token", Description: "OAuth access token", Required: true},
			{Key: "refresh_token", Label: "Refresh Token", Description: "OAuth refresh token"},
			{Key: "content_types", Label: "Content Types", Description: "files, docs, sheets"},
			{Key: "folder_ids", Label: "Folders", Description: "Restrict to these folder IDs"},
		},
	}
}

func uploadType() ConnectorType {
	return ConnectorType{
		ID:          "upload",
		Name:        "Local Upload",
		Description: "Index files from a local directory",
		ConfigKeys: []ConfigKey{
			{Key: "path", Label: "Directory Path", Description: "Path to the directory to index", Required: true},
			{Key: "patterns", Label: "File Patterns", Description: "Glob patterns to match (e.g., *.md,*.txt)"},
		},
	}
}
