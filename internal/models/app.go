// Package models provides data structures for the SiApp platform.
package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TimeLayout is the timestamp format persisted in created_at and updated_at.
const TimeLayout = "2006-01-02 15:04:05"

// Wire keys of an application record. These are also the placeholder names
// available to page templates, e.g. {{APP_NAME}}.
const (
	KeyName      = "APP_NAME"
	KeySlug      = "APP_SLUG"
	KeyShortName = "APP_SHORT_NAME"
	KeyURL       = "APP_URL"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// Field length limits.
const (
	MaxNameLength      = 100
	MaxShortNameLength = 20
)

// App is a registered Apps Script application reachable under /<slug>.
type App struct {
	Name      string `json:"APP_NAME" yaml:"name"`
	Slug      string `json:"APP_SLUG" yaml:"slug"`
	ShortName string `json:"APP_SHORT_NAME" yaml:"short_name"`
	URL       string `json:"APP_URL" yaml:"url"`
	CreatedAt string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// AppPatch carries a partial update. Nil fields are left untouched.
type AppPatch struct {
	Name      *string
	Slug      *string
	ShortName *string
	URL       *string
}

// Empty reports whether the patch changes nothing.
func (p AppPatch) Empty() bool {
	return p.Name == nil && p.Slug == nil && p.ShortName == nil && p.URL == nil
}

// Apply returns a copy of app with the patch merged in.
func (p AppPatch) Apply(app App) App {
	if p.Name != nil {
		app.Name = *p.Name
	}
	if p.Slug != nil {
		app.Slug = *p.Slug
	}
	if p.ShortName != nil {
		app.ShortName = *p.ShortName
	}
	if p.URL != nil {
		app.URL = *p.URL
	}
	return app
}

// Fields returns the record as a flat key/value map keyed by wire names.
// Empty timestamps are omitted.
func (a *App) Fields() map[string]string {
	fields := map[string]string{
		KeyName:      a.Name,
		KeySlug:      a.Slug,
		KeyShortName: a.ShortName,
		KeyURL:       a.URL,
	}
	if a.CreatedAt != "" {
		fields[KeyCreatedAt] = a.CreatedAt
	}
	if a.UpdatedAt != "" {
		fields[KeyUpdatedAt] = a.UpdatedAt
	}
	return fields
}

// DeriveShortName returns name trimmed, cut to 17 runes plus "..." when it
// exceeds MaxShortNameLength.
func DeriveShortName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= MaxShortNameLength {
		return name
	}
	return string([]rune(name)[:MaxShortNameLength-3]) + "..."
}

// Path returns the public path of the app.
func (a *App) Path() string {
	return "/" + a.Slug
}

// UpdatedTime parses UpdatedAt. The zero time is returned when unset or malformed.
func (a *App) UpdatedTime() time.Time {
	t, err := time.ParseInLocation(TimeLayout, a.UpdatedAt, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTime renders t in the persisted timestamp layout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// Stats summarizes the registered applications for the dashboard.
type Stats struct {
	TotalApps       int    `json:"total_apps"`
	TotalSlugs      int    `json:"total_slugs"`
	ActiveTemplates int    `json:"active_templates"`
	LastUpdated     string `json:"last_updated,omitempty"`
}

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
