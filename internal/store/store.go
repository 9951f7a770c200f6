// Package store provides record storage interfaces for registered applications.
package store

import (
	"context"
	"errors"

	"github.com/siapp-dev/siapp/internal/models"
)

// Store errors. Validation failures wrap both ErrValidation and a
// *models.ValidationError describing the offending field.
var (
	// ErrNotFound is returned when no record has the requested slug.
	ErrNotFound = errors.New("application not found")
	// ErrConflict is returned when a slug is already taken by another record.
	ErrConflict = errors.New("application slug already exists")
	// ErrValidation is returned when a record or patch is malformed.
	ErrValidation = errors.New("invalid application")
	// ErrStorage is returned when a write could not be persisted.
	ErrStorage = errors.New("storage failure")
)

// AppStore defines operations on application records keyed by slug.
//
// Read operations never report storage failures: an unreadable store looks
// the same as an empty one. Failures are logged by the implementation.
type AppStore interface {
	// List returns every record.
	List(ctx context.Context) []*models.App
	// GetBySlug returns the record with the given slug or ErrNotFound.
	GetBySlug(ctx context.Context, slug string) (*models.App, error)
	// Create validates and stores a new record with fresh timestamps.
	Create(ctx context.Context, app *models.App) (*models.App, error)
	// Update merges patch into the record stored under slug.
	Update(ctx context.Context, slug string, patch models.AppPatch) (*models.App, error)
	// Delete removes the record with the given slug and reports whether one existed.
	Delete(ctx context.Context, slug string) bool
	// Search returns records whose name, slug or short name contain text, ignoring case.
	Search(ctx context.Context, text string) []*models.App
	// Slugs returns the slug of every record.
	Slugs(ctx context.Context) []string
	// Stats summarizes the stored records.
	Stats(ctx context.Context) models.Stats
	// Import creates every record whose slug is not yet taken and returns how many were created.
	Import(ctx context.Context, apps []*models.App) int
	// Export returns every record for backup.
	Export(ctx context.Context) []*models.App
}

// Store is the process-wide storage handle.
type Store interface {
	// Apps returns the AppStore for application records.
	Apps() AppStore
	// Ping verifies the backing storage is usable.
	Ping(ctx context.Context) error
	// Close releases the storage handle.
	Close() error
}
