// Package cleanup runs periodic housekeeping for a SiApp instance: temp files
// orphaned in the data directory by interrupted writes, and admin sessions
// that have gone idle.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/siapp-dev/siapp/internal/docstore"
)

// Default values for cleanup settings.
const (
	DefaultInterval          = time.Hour
	DefaultTempFileRetention = 15 * time.Minute
)

// Settings holds cleanup configuration.
type Settings struct {
	// Interval is the time between cleanup runs.
	Interval time.Duration `json:"interval"`
	// TempFileRetention is how old a temp file must be before it is
	// considered orphaned.
	TempFileRetention time.Duration `json:"temp_file_retention"`
}

// DefaultSettings returns the default cleanup settings.
func DefaultSettings() *Settings {
	return &Settings{
		Interval:          DefaultInterval,
		TempFileRetention: DefaultTempFileRetention,
	}
}

// Validate validates that all cleanup settings have positive values.
func (s *Settings) Validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", s.Interval)
	}
	if s.TempFileRetention <= 0 {
		return fmt.Errorf("temp_file_retention must be positive, got %v", s.TempFileRetention)
	}
	return nil
}

// SessionPruner drops expired sessions and reports how many were removed.
type SessionPruner interface {
	Prune() int
	SessionCount() int
}

// CleanupResult holds the result of a cleanup operation.
type CleanupResult struct {
	ItemsRemoved int           `json:"items_removed"`
	SpaceFreed   int64         `json:"space_freed_bytes"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Service removes orphaned temp files and prunes idle sessions on a timer.
type Service struct {
	dataDir  string
	sessions SessionPruner
	settings *Settings
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewService creates a new cleanup service. sessions may be nil.
func NewService(dataDir string, sessions SessionPruner, settings *Settings, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cleanup settings: %w", err)
	}
	return &Service{
		dataDir:  dataDir,
		sessions: sessions,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// CleanupTempFiles removes temp files under the data directory older than
// the retention period. Younger temp files may belong to a write in progress
// and are left alone.
func (s *Service) CleanupTempFiles(ctx context.Context) (*CleanupResult, error) {
	start := time.Now()
	result := &CleanupResult{}
	cutoff := s.now().Add(-s.settings.TempFileRetention)

	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			result.Errors = append(result.Errors, err.Error())
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), docstore.TempPrefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("removing %s: %v", path, err))
			return nil
		}
		s.logger.Debug("removed orphaned temp file", "path", path, "age", s.now().Sub(info.ModTime()).Round(time.Second))
		result.ItemsRemoved++
		result.SpaceFreed += info.Size()
		return nil
	})

	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("walking data directory: %w", err)
	}
	return result, nil
}

// PruneSessions drops idle admin sessions and expired token revocations.
func (s *Service) PruneSessions() *CleanupResult {
	start := time.Now()
	result := &CleanupResult{}
	if s.sessions != nil {
		result.ItemsRemoved = s.sessions.Prune()
	}
	result.Duration = time.Since(start)
	return result
}

// RunOnce performs every cleanup task once.
func (s *Service) RunOnce(ctx context.Context) {
	files, err := s.CleanupTempFiles(ctx)
	if err != nil {
		s.logger.Error("temp file cleanup failed", "error", err)
	}
	for _, e := range files.Errors {
		s.logger.Warn("temp file cleanup error", "error", e)
	}

	sessions := s.PruneSessions()

	if files.ItemsRemoved > 0 || sessions.ItemsRemoved > 0 {
		active := 0
		if s.sessions != nil {
			active = s.sessions.SessionCount()
		}
		s.logger.Info("cleanup completed",
			"temp_files_removed", files.ItemsRemoved,
			"space_freed_bytes", files.SpaceFreed,
			"sessions_pruned", sessions.ItemsRemoved,
			"active_sessions", active,
		)
	}
}

// Start runs cleanup immediately and then every Interval until ctx is
// cancelled or Shutdown is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("starting cleanup service",
		"interval", s.settings.Interval,
		"temp_file_retention", s.settings.TempFileRetention,
	)

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.settings.Interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Name returns the component name used during shutdown.
func (s *Service) Name() string {
	return "cleanup"
}

// Shutdown stops the cleanup loop and waits for a run in progress.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
