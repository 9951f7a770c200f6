package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/siapp-dev/siapp/internal/auth"
	"github.com/siapp-dev/siapp/internal/models"
	"github.com/siapp-dev/siapp/internal/store"
	"github.com/siapp-dev/siapp/ui"
)

// maxDerivedSlugSuffix bounds the -N suffixes tried when a slug derived from
// a name is already taken.
const maxDerivedSlugSuffix = 100

// AdminHandler serves the authenticated admin panel.
type AdminHandler struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(st store.Store, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Dashboard shows the stats and the application list, filtered by ?q=.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps := h.store.Apps()
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	list := apps.List(ctx)
	if q != "" {
		list = apps.Search(ctx, q)
	}

	renderComponent(w, r, http.StatusOK, ui.Dashboard(ui.DashboardView{
		Stats: apps.Stats(ctx),
		Apps:  list,
		Query: q,
		User:  auth.UserFromContext(ctx),
	}), h.logger)
}

// Manage shows the create form, or the edit form when ?edit=<slug> is set.
func (h *AdminHandler) Manage(w http.ResponseWriter, r *http.Request) {
	view := ui.ManageView{User: auth.UserFromContext(r.Context())}

	if edit := strings.TrimSpace(r.URL.Query().Get("edit")); edit != "" {
		app, err := h.store.Apps().GetBySlug(r.Context(), edit)
		if err != nil {
			view.Flash = &ui.Flash{Kind: ui.FlashError, Message: "Application not found."}
		} else {
			view.Edit = app
		}
	}

	h.renderManage(w, r, view)
}

// ManageSubmit handles the create, update and delete form actions. Every
// outcome renders the manage page with status 200 and a flash.
func (h *AdminHandler) ManageSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	view := ui.ManageView{User: auth.UserFromContext(r.Context())}

	switch action := r.PostForm.Get("action"); action {
	case "create":
		view.Flash = h.create(r)
	case "update":
		var app *models.App
		app, view.Flash = h.update(r)
		if app != nil && view.Flash.Kind == ui.FlashError {
			view.Edit = app
		}
	case "delete":
		view.Flash = h.delete(r)
	default:
		view.Flash = &ui.Flash{Kind: ui.FlashError, Message: "Unknown action."}
	}

	h.renderManage(w, r, view)
}

// Export downloads every record as a JSON array.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	apps := h.store.Apps().Export(r.Context())
	if apps == nil {
		apps = []*models.App{}
	}

	filename := fmt.Sprintf("siapp-export-%s.json", h.now().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	WritePrettyJSON(w, http.StatusOK, apps)

	h.logger.InfoContext(r.Context(), "applications exported", "count", len(apps))
}

func (h *AdminHandler) create(r *http.Request) *ui.Flash {
	ctx := r.Context()
	app := &models.App{
		Name:      strings.TrimSpace(r.PostForm.Get("app_name")),
		Slug:      strings.TrimSpace(r.PostForm.Get("app_slug")),
		ShortName: strings.TrimSpace(r.PostForm.Get("app_short_name")),
		URL:       strings.TrimSpace(r.PostForm.Get("app_url")),
	}
	if app.Slug == "" {
		app.Slug = h.deriveSlug(ctx, app.Name)
	}
	if app.ShortName == "" {
		app.ShortName = models.DeriveShortName(app.Name)
	}

	created, err := h.store.Apps().Create(ctx, app)
	if err != nil {
		return h.failure(ctx, "create", app.Slug, err)
	}

	h.logger.InfoContext(ctx, "application created", "slug", created.Slug)
	return &ui.Flash{Kind: ui.FlashSuccess, Message: "Application created."}
}

func (h *AdminHandler) update(r *http.Request) (*models.App, *ui.Flash) {
	ctx := r.Context()
	original := strings.TrimSpace(r.PostForm.Get("original_slug"))

	name := strings.TrimSpace(r.PostForm.Get("app_name"))
	newSlug := strings.TrimSpace(r.PostForm.Get("app_slug"))
	shortName := strings.TrimSpace(r.PostForm.Get("app_short_name"))
	appURL := strings.TrimSpace(r.PostForm.Get("app_url"))
	if newSlug == "" {
		newSlug = original
	}
	if shortName == "" {
		shortName = models.DeriveShortName(name)
	}

	patch := models.AppPatch{Name: &name, Slug: &newSlug, ShortName: &shortName, URL: &appURL}
	updated, err := h.store.Apps().Update(ctx, original, patch)
	if err != nil {
		flash := h.failure(ctx, "update", original, err)
		form := patch.Apply(models.App{Slug: original})
		form.Slug = original
		return &form, flash
	}

	h.logger.InfoContext(ctx, "application updated", "slug", original, "new_slug", updated.Slug)
	return updated, &ui.Flash{Kind: ui.FlashSuccess, Message: "Application updated."}
}

func (h *AdminHandler) delete(r *http.Request) *ui.Flash {
	ctx := r.Context()
	target := strings.TrimSpace(r.PostForm.Get("slug"))

	if !h.store.Apps().Delete(ctx, target) {
		return &ui.Flash{Kind: ui.FlashError, Message: "Application not found."}
	}

	h.logger.InfoContext(ctx, "application deleted", "slug", target)
	return &ui.Flash{Kind: ui.FlashSuccess, Message: "Application deleted."}
}

// failure maps a store error to a flash message. Validation messages are
// shown; storage causes are only logged.
func (h *AdminHandler) failure(ctx context.Context, action, target string, err error) *ui.Flash {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		return &ui.Flash{Kind: ui.FlashError, Message: ve.Message}
	case errors.Is(err, store.ErrConflict):
		return &ui.Flash{Kind: ui.FlashError, Message: "That slug is already in use."}
	case errors.Is(err, store.ErrNotFound):
		return &ui.Flash{Kind: ui.FlashError, Message: "Application not found."}
	}

	h.logger.ErrorContext(ctx, "failed to "+action+" application", "error", err, "slug", target)
	return &ui.Flash{Kind: ui.FlashError, Message: "The application could not be saved. Please try again."}
}

// deriveSlug turns name into a URL slug, adding a numeric suffix until it
// is unused.
func (h *AdminHandler) deriveSlug(ctx context.Context, name string) string {
	base := slug.Make(name)
	if base == "" {
		return ""
	}
	apps := h.store.Apps()
	candidate := base
	for i := 2; i <= maxDerivedSlugSuffix; i++ {
		if _, err := apps.GetBySlug(ctx, candidate); errors.Is(err, store.ErrNotFound) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return candidate
}

func (h *AdminHandler) renderManage(w http.ResponseWriter, r *http.Request, view ui.ManageView) {
	view.Apps = h.store.Apps().List(r.Context())
	renderComponent(w, r, http.StatusOK, ui.Manage(view), h.logger)
}
