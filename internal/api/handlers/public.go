package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/siapp-dev/siapp/internal/models"
	"github.com/siapp-dev/siapp/internal/render"
	"github.com/siapp-dev/siapp/internal/store"
	"github.com/siapp-dev/siapp/ui"
)

// notFoundResponse is returned when a slug resolves to no application.
type notFoundResponse struct {
	Error          string   `json:"error"`
	RequestedSlug  string   `json:"requested_slug"`
	AvailableSlugs []string `json:"available_slugs"`
	Message        string   `json:"message"`
}

// templateMissingResponse is returned in place of the page when index.html
// is absent.
type templateMissingResponse struct {
	Error   string      `json:"error"`
	AppData *models.App `json:"app_data"`
	Message string      `json:"message"`
}

// PublicHandler serves the landing page, the docs page and application pages.
type PublicHandler struct {
	store    store.Store
	renderer *render.Renderer
	logger   *slog.Logger
}

// NewPublicHandler creates a new public handler.
func NewPublicHandler(st store.Store, renderer *render.Renderer, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{
		store:    st,
		renderer: renderer,
		logger:   logger,
	}
}

// Landing serves landing.html, or a generated list of applications when the
// template is missing.
func (h *PublicHandler) Landing(w http.ResponseWriter, r *http.Request) {
	body, err := h.renderer.Landing()
	if err == nil {
		writeHTML(w, http.StatusOK, body)
		return
	}
	if !errors.Is(err, render.ErrTemplateMissing) {
		h.logger.ErrorContext(r.Context(), "failed to read landing page", "error", err)
	}
	renderComponent(w, r, http.StatusOK, ui.AppList(h.store.Apps().List(r.Context())), h.logger)
}

// Docs serves the Apps Script integration guide.
func (h *PublicHandler) Docs(w http.ResponseWriter, r *http.Request) {
	body, err := h.renderer.Docs()
	if err != nil {
		h.logger.WarnContext(r.Context(), "docs page unavailable", "error", err)
		http.NotFound(w, r)
		return
	}
	writeHTML(w, http.StatusOK, body)
}

// Show handles GET /{slug}. The application record is returned as JSON when
// the client asks for it, otherwise the PWA shell page is rendered.
func (h *PublicHandler) Show(w http.ResponseWriter, r *http.Request) {
	slug := strings.Trim(r.URL.Path, "/")
	if slug == "" {
		h.Landing(w, r)
		return
	}

	apps := h.store.Apps()
	app, err := apps.GetBySlug(r.Context(), slug)
	if err != nil {
		WritePrettyJSON(w, http.StatusNotFound, notFoundResponse{
			Error:          "App not found",
			RequestedSlug:  slug,
			AvailableSlugs: nonNil(apps.Slugs(r.Context())),
			Message:        fmt.Sprintf("The requested app slug %q does not exist", slug),
		})
		return
	}

	if wantsJSON(r) {
		body, err := render.AppJSON(app)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to encode application", "error", err, "slug", slug)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeBody(w, http.StatusOK, contentTypeJSON, body)
		return
	}

	page, err := h.renderer.Page(app)
	if err != nil {
		if errors.Is(err, render.ErrTemplateMissing) {
			h.logger.WarnContext(r.Context(), "page template missing", "slug", slug)
			WritePrettyJSON(w, http.StatusOK, templateMissingResponse{
				Error:   "Template not found",
				AppData: app,
				Message: "App data is available but the template file is missing",
			})
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to render page", "error", err, "slug", slug)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, page)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
