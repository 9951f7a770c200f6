// Package flatfile implements the store interfaces on top of the flat-file
// document database.
package flatfile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siapp-dev/siapp/internal/docstore"
	"github.com/siapp-dev/siapp/internal/store"
)

// AppsCollection is the collection holding application records.
const AppsCollection = "applications"

// Config holds flat-file store configuration.
type Config struct {
	// DataDir is the root directory; each collection is a subdirectory.
	DataDir string
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// DefaultConfig returns a Config rooted at dataDir.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		Now:     time.Now,
	}
}

// FlatFileStore implements store.Store.
type FlatFileStore struct {
	db     *docstore.DB
	apps   *AppStore
	logger *slog.Logger
}

// NewFlatFileStore opens the data directory and verifies it is writable.
func NewFlatFileStore(cfg *Config, logger *slog.Logger) (*FlatFileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := docstore.Open(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening data directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("checking data directory: %w", err)
	}

	coll, err := db.Collection(AppsCollection)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s collection: %w", AppsCollection, err)
	}

	s := &FlatFileStore{
		db:     db,
		logger: logger,
	}
	s.apps = NewAppStore(coll, logger.With("component", "app_store"), cfg.Now)

	count, err := coll.Count(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading %s collection: %w", AppsCollection, err)
	}

	logger.Info("flat-file store ready", "dir", cfg.DataDir, "applications", count)
	return s, nil
}

// Apps returns the AppStore.
func (s *FlatFileStore) Apps() store.AppStore {
	return s.apps
}

// Ping verifies the data directory is writable.
func (s *FlatFileStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the store.
func (s *FlatFileStore) Close() error {
	return s.db.Close()
}
