package gdrive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// Google Workspace MIME types that are exported rather than downloaded.
const (
	MimeTypeGoogleDoc    = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypeGoogleSlides = "application/vnd.google-apps.presentation"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
)

// Export formats for Google Workspace files.
const (
	ExportMimeText = "text/plain"
	ExportMimeCSV  = "text/csv"
)

// MaxFetchSize is the maximum size for downloaded or exported content (5MB).
const MaxFetchSize = 5 * 1024 * 1024

// fileToRawDocument converts a drive file to a raw document, downloading
// or exporting its content. Returns nil for files with no fetchable text,
// such as binary or oversized ones.
func fileToRawDocument(
	ctx context.Context, svc *drive.Service, file *drive.File, accountID string,
) (*domain.RawDocument, error) {
	content, exportedMime, err := fetchFileContent(ctx, svc, file)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, nil
	}

	contentType := file.MimeType
	if exportedMime != "" {
		contentType = exportedMime
	}

	modified, _ := time.Parse(time.RFC3339, file.ModifiedTime)

	return &domain.RawDocument{
		AccountID:   accountID,
		ExternalID:  file.Id,
		Name:        file.Name,
		ContentType: contentType,
		Content:     []byte(content),
		ModifiedAt:  modified,
		Metadata: map[string]any{
			"type":          "drive_file",
			"mime_type":     file.MimeType,
			"size":          file.Size,
			"web_link":      file.WebViewLink,
			"modified_time": file.ModifiedTime,
		},
	}, nil
}

// fetchFileContent retrieves the text content of a file. Workspace files
// are exported; regular text files are downloaded. Returns the export MIME
// type when the file was converted.
func fetchFileContent(ctx context.Context, svc *drive.Service, file *drive.File) (string, string, error) {
	switch file.MimeType {
	case MimeTypeGoogleDoc, MimeTypeGoogleSlides:
		content, err := exportGoogleFile(ctx, svc, file.Id, ExportMimeText)
		return content, ExportMimeText, err
	case MimeTypeGoogleSheet:
		content, err := exportGoogleFile(ctx, svc, file.Id, ExportMimeCSV)
		return content, ExportMimeCSV, err
	}

	if !isTextMime(file.MimeType) || file.Size > MaxFetchSize {
		return "", "", nil
	}

	resp, err := svc.Files.Get(file.Id).Context(ctx).Download()
	if err != nil {
		return "", "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchSize))
	if err != nil {
		return "", "", fmt.Errorf("read file content: %w", err)
	}

	return string(data), "", nil
}

func exportGoogleFile(ctx context.Context, svc *drive.Service, fileID, exportMime string) (string, error) {
	resp, err := svc.Files.Export(fileID, exportMime).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("export file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchSize))
	if err != nil {
		return "", fmt.Errorf("read export: %w", err)
	}

	return string(data), nil
}

// isTextMime checks if a MIME type is likely text content.
func isTextMime(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}

	switch mimeType {
	case "application/json",
		"application/xml",
		"application/javascript",
		"application/x-yaml",
		"application/x-sh",
		"application/sql":
		return true
	}
	return false
}

// shouldSyncFile checks whether a file is in scope for the configuration.
func shouldSyncFile(file *drive.File, cfg *Config) bool {
	if file.MimeType == MimeTypeFolder {
		return false
	}

	if len(cfg.MimeTypeFilter) > 0 {
		found := false
		for _, filter := range cfg.MimeTypeFilter {
			if file.MimeType == filter {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	switch file.MimeType {
	case MimeTypeGoogleDoc, MimeTypeGoogleSlides:
		return cfg.HasContentType(ContentDocs)
	case MimeTypeGoogleSheet:
		return cfg.HasContentType(ContentSheets)
	default:
		return cfg.HasContentType(ContentFiles)
	}
}
