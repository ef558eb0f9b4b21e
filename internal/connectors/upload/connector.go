package upload

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// Connector indexes files under a local directory.
type Connector struct {
	config *Config
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates an upload connector for an account. The token provider is
// unused: local directories need no authentication.
func New(account *domain.Account, _ driven.TokenProvider, logger zerolog.Logger) (*Connector, error) {
	cfg, err := ParseConfig(account.Config)
	if err != nil {
		return nil, err
	}
	return &Connector{
		config: cfg,
		logger: logger.With().Str("connector", "upload").Logger(),
	}, nil
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return "upload"
}

// Capabilities returns the connector's capabilities.
func (c *Connector) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		SupportsIncremental:  true,
		SupportsWatch:        true,
		RequiresAuth:         false,
		SupportsCursorReturn: true,
		SupportsRateLimiting: false,
	}
}

// Authenticate validates the configured root path. No credential is
// produced: local directories carry no token material.
func (c *Connector) Authenticate(_ context.Context, config map[string]string) (*domain.Credential, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	if err := validateRoot(cfg.Root); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	return nil, nil
}

// Connect checks that the root directory is still accessible.
func (c *Connector) Connect(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRoot(c.config.Root); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
	}
	c.logger.Debug().
		Str("account_id", account.ID).
		Str("root", c.config.Root).
		Msg("upload root validated")
	return nil
}

// Sync walks the root directory. Incremental syncs only emit files whose
// modification time is at or after the cursor watermark; files modified
// exactly at the boundary are included so nothing slips between runs.
func (c *Connector) Sync(
	ctx context.Context, account *domain.Account, req domain.SyncRequest,
) (<-chan domain.DocumentChange, <-chan error) {
	changes := make(chan domain.DocumentChange)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errs)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			errs <- domain.ErrConnectorClosed
			return
		}
		c.mu.Unlock()

		if err := validateRoot(c.config.Root); err != nil {
			errs <- err
			return
		}

		incremental := req.Mode() == domain.SyncIncremental

		var since time.Time
		if incremental {
			decoded, err := DecodeCursor(req.Cursor)
			if err != nil {
				errs <- err
				return
			}
			since = decoded
		}

		// Taken before the walk: files modified while it runs are
		// re-read on the next sync.
		watermark := time.Now().UTC()

		walkErr := filepath.WalkDir(c.config.Root, func(path string, entry fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				return err
			}

			rel, relErr := filepath.Rel(c.config.Root, path)
			if relErr != nil {
				return relErr
			}

			if entry.IsDir() {
				if rel != "." && isHidden(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if isHidden(rel) || !entry.Type().IsRegular() {
				return nil
			}
			if !c.config.matchesPatterns(rel) {
				return nil
			}

			info, infoErr := entry.Info()
			if infoErr != nil {
				c.logger.Warn().Err(infoErr).Str("path", path).Msg("stat failed")
				return nil
			}
			if info.Size() > MaxFileBytes {
				return nil
			}
			if incremental && info.ModTime().Before(since) {
				return nil
			}
			if !isIndexable(detectMIMEType(path)) {
				return nil
			}

			doc, readErr := readDocument(path, rel, info)
			if readErr != nil {
				c.logger.Warn().Err(readErr).Str("path", path).Msg("read failed")
				return nil
			}

			changeType := domain.ChangeCreated
			if incremental {
				changeType = domain.ChangeUpdated
			}
			doc.AccountID = account.ID

			select {
			case <-ctx.Done():
				return ctx.Err()
			case changes <- domain.DocumentChange{Type: changeType, Document: *doc}:
			}
			return nil
		})
		if walkErr != nil {
			errs <- walkErr
			return
		}

		errs <- &driven.SyncComplete{NewCursor: EncodeCursor(watermark)}
	}()

	return changes, errs
}

// Watch streams filesystem events for the root directory and its
// subdirectories. The channel closes when the context is cancelled.
func (c *Connector) Watch(ctx context.Context, account *domain.Account) (<-chan domain.DocumentChange, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrConnectorClosed
	}
	c.mu.Unlock()

	if err := validateRoot(c.config.Root); err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Register the root and every non-hidden subdirectory. fsnotify
	// watches are not recursive.
	err = filepath.WalkDir(c.config.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(c.config.Root, path)
		if relErr != nil {
			return relErr
		}
		if rel != "." && isHidden(rel) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("register watches: %w", err)
	}

	out := make(chan domain.DocumentChange)

	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Create) {
					// New directories join the watch set.
					if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
						rel, relErr := filepath.Rel(c.config.Root, event.Name)
						if relErr == nil && !isHidden(rel) {
							if addErr := watcher.Add(event.Name); addErr != nil {
								c.logger.Warn().Err(addErr).Str("path", event.Name).Msg("watch add failed")
							}
						}
						continue
					}
				}
				change := c.handleFsEvent(event, account)
				if change == nil {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- *change:
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn().Err(watchErr).Msg("watch error")
			}
		}
	}()

	return out, nil
}

// handleFsEvent maps a filesystem event to a document change. Hidden
// files, directories and chmod-only events produce nil.
func (c *Connector) handleFsEvent(event fsnotify.Event, account *domain.Account) *domain.DocumentChange {
	rel, err := filepath.Rel(c.config.Root, event.Name)
	if err != nil || isHidden(rel) {
		return nil
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		return &domain.DocumentChange{
			Type: domain.ChangeDeleted,
			Document: domain.RawDocument{
				AccountID:  account.ID,
				ExternalID: event.Name,
			},
		}
	}

	var changeType domain.ChangeType
	switch {
	case event.Op.Has(fsnotify.Create):
		changeType = domain.ChangeCreated
	case event.Op.Has(fsnotify.Write):
		changeType = domain.ChangeUpdated
	default:
		return nil
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return nil
	}
	if info.Size() > MaxFileBytes || !c.config.matchesPatterns(rel) {
		return nil
	}

	doc, err := readDocument(event.Name, rel, info)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", event.Name).Msg("read failed")
		return nil
	}
	doc.AccountID = account.ID

	return &domain.DocumentChange{Type: changeType, Document: *doc}
}

// Disconnect has nothing to revoke for a local directory.
func (c *Connector) Disconnect(_ context.Context, account *domain.Account) {
	c.logger.Debug().Str("account_id", account.ID).Msg("upload account disconnected")
}

// Close marks the connector closed. Idempotent.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// validateRoot checks the root path exists and is a directory.
func validateRoot(root string) error {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return fmt.Errorf("root path %q does not exist", root)
	}
	if err != nil {
		return fmt.Errorf("root path %q: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path %q is not a directory", root)
	}
	return nil
}
