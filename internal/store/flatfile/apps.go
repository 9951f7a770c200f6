package flatfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/siapp-dev/siapp/internal/docstore"
	"github.com/siapp-dev/siapp/internal/models"
	"github.com/siapp-dev/siapp/internal/store"
	"github.com/siapp-dev/siapp/internal/validation"
)

// AppStore implements store.AppStore on a docstore collection.
type AppStore struct {
	coll   *docstore.Collection
	logger *slog.Logger
	now    func() time.Time
}

// NewAppStore wraps an existing collection. A nil now uses time.Now.
func NewAppStore(coll *docstore.Collection, logger *slog.Logger, now func() time.Time) *AppStore {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &AppStore{coll: coll, logger: logger, now: now}
}

// List returns all records ordered by creation time.
func (s *AppStore) List(ctx context.Context) []*models.App {
	docs, err := s.coll.Query().Fetch(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list applications", "error", err)
		return []*models.App{}
	}

	apps := make([]*models.App, 0, len(docs))
	for _, doc := range docs {
		apps = append(apps, appFromDoc(doc))
	}
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].CreatedAt < apps[j].CreatedAt
	})
	return apps
}

// GetBySlug returns the first record with the given slug.
func (s *AppStore) GetBySlug(ctx context.Context, slug string) (*models.App, error) {
	if slug == "" {
		return nil, store.ErrNotFound
	}

	doc, err := s.coll.Query().Where(models.KeySlug, slug).First(ctx)
	if err != nil {
		if !errors.Is(err, docstore.ErrNoDocument) {
			s.logger.ErrorContext(ctx, "failed to look up application", "error", err, "slug", slug)
		}
		return nil, store.ErrNotFound
	}
	return appFromDoc(doc), nil
}

// Create validates app and persists it if its slug is free.
func (s *AppStore) Create(ctx context.Context, app *models.App) (*models.App, error) {
	if err := validation.ValidateApp(app); err != nil {
		s.logger.WarnContext(ctx, "rejected application", "error", err)
		return nil, fmt.Errorf("%w: %w", store.ErrValidation, err)
	}

	now := models.FormatTime(s.now())
	record := &models.App{
		Name:      app.Name,
		Slug:      app.Slug,
		ShortName: app.ShortName,
		URL:       app.URL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	doc, err := s.coll.InsertUnique(ctx, models.KeySlug, docFromApp(record))
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicate) {
			s.logger.WarnContext(ctx, "application slug already exists", "slug", app.Slug)
			return nil, fmt.Errorf("%w: %s", store.ErrConflict, app.Slug)
		}
		s.logger.ErrorContext(ctx, "failed to insert application", "error", err, "slug", app.Slug)
		return nil, fmt.Errorf("%w: %w", store.ErrStorage, err)
	}

	s.logger.InfoContext(ctx, "application created", "slug", record.Slug, "name", record.Name)
	return appFromDoc(doc), nil
}

// Update merges patch into the record stored under slug. An empty patch
// returns the record without writing it.
func (s *AppStore) Update(ctx context.Context, slug string, patch models.AppPatch) (*models.App, error) {
	if err := validation.ValidatePatch(patch); err != nil {
		s.logger.WarnContext(ctx, "rejected application update", "error", err, "slug", slug)
		return nil, fmt.Errorf("%w: %w", store.ErrValidation, err)
	}

	current, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}

	updated := patch.Apply(*current)
	updated.UpdatedAt = models.FormatTime(s.now())

	fields := docFromApp(&updated)
	delete(fields, models.KeyCreatedAt)

	n, err := s.coll.Query().Where(models.KeySlug, slug).UpdateUnique(ctx, models.KeySlug, fields)
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicate) {
			s.logger.WarnContext(ctx, "new application slug already exists", "slug", slug, "new_slug", updated.Slug)
			return nil, fmt.Errorf("%w: %s", store.ErrConflict, updated.Slug)
		}
		s.logger.ErrorContext(ctx, "failed to update application", "error", err, "slug", slug)
		return nil, fmt.Errorf("%w: %w", store.ErrStorage, err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}

	s.logger.InfoContext(ctx, "application updated", "slug", slug, "new_slug", updated.Slug)
	return s.GetBySlug(ctx, updated.Slug)
}

// Delete removes every record with the given slug.
func (s *AppStore) Delete(ctx context.Context, slug string) bool {
	if slug == "" {
		return false
	}
	n, err := s.coll.Query().Where(models.KeySlug, slug).Delete(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete application", "error", err, "slug", slug)
		return false
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "application deleted", "slug", slug)
	}
	return n > 0
}

// Search matches text against name, slug and short name, ignoring case.
func (s *AppStore) Search(ctx context.Context, text string) []*models.App {
	needle := strings.ToLower(text)
	results := []*models.App{}
	for _, app := range s.List(ctx) {
		haystack := strings.ToLower(app.Name + " " + app.Slug + " " + app.ShortName)
		if strings.Contains(haystack, needle) {
			results = append(results, app)
		}
	}
	return results
}

// Slugs returns the slug of every record.
func (s *AppStore) Slugs(ctx context.Context) []string {
	apps := s.List(ctx)
	slugs := make([]string, 0, len(apps))
	for _, app := range apps {
		if app.Slug != "" {
			slugs = append(slugs, app.Slug)
		}
	}
	return slugs
}

// Stats summarizes the stored records.
func (s *AppStore) Stats(ctx context.Context) models.Stats {
	apps := s.List(ctx)
	stats := models.Stats{
		TotalApps:       len(apps),
		ActiveTemplates: 1,
	}

	var latest time.Time
	for _, app := range apps {
		if app.Slug != "" {
			stats.TotalSlugs++
		}
		if t := app.UpdatedTime(); !t.IsZero() && t.After(latest) {
			latest = t
			stats.LastUpdated = app.UpdatedAt
		}
	}
	return stats
}

// Import creates each record whose slug is free. Invalid records are skipped.
func (s *AppStore) Import(ctx context.Context, apps []*models.App) int {
	imported := 0
	for _, app := range apps {
		if app == nil {
			continue
		}
		if _, err := s.GetBySlug(ctx, app.Slug); err == nil {
			continue
		}
		if _, err := s.Create(ctx, app); err != nil {
			s.logger.WarnContext(ctx, "skipped application during import", "error", err, "slug", app.Slug)
			continue
		}
		imported++
	}
	s.logger.InfoContext(ctx, "imported applications", "count", imported, "offered", len(apps))
	return imported
}

// Export returns every record.
func (s *AppStore) Export(ctx context.Context) []*models.App {
	return s.List(ctx)
}

func docFromApp(app *models.App) docstore.Document {
	doc := docstore.Document{}
	for k, v := range app.Fields() {
		doc[k] = v
	}
	return doc
}

// appFromDoc converts a stored document, dropping the internal _id.
func appFromDoc(doc docstore.Document) *models.App {
	return &models.App{
		Name:      doc.String(models.KeyName),
		Slug:      doc.String(models.KeySlug),
		ShortName: doc.String(models.KeyShortName),
		URL:       doc.String(models.KeyURL),
		CreatedAt: doc.String(models.KeyCreatedAt),
		UpdatedAt: doc.String(models.KeyUpdatedAt),
	}
}
