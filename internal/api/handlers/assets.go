package handlers

import (
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/siapp-dev/siapp/internal/models"
	"github.com/siapp-dev/siapp/internal/render"
	"github.com/siapp-dev/siapp/internal/store"
)

// assetRoute matches <slug>/manifest.json, <slug>/sw.js and <slug>/icons/<file>
// on the path with surrounding slashes trimmed.
var assetRoute = regexp.MustCompile(`^([A-Za-z0-9_-]+)/(manifest\.json|sw\.js|icons/.+)$`)

// AssetHandler serves the per-application PWA assets.
type AssetHandler struct {
	store    store.Store
	renderer *render.Renderer
	logger   *slog.Logger
}

// NewAssetHandler creates a new asset handler.
func NewAssetHandler(st store.Store, renderer *render.Renderer, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		store:    st,
		renderer: renderer,
		logger:   logger,
	}
}

// Intercept returns a middleware that serves asset paths before any other
// route is considered. Every other request is passed to next.
func (h *AssetHandler) Intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := strings.Trim(r.URL.Path, "/")
		m := assetRoute.FindStringSubmatch(route)
		if m == nil || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			next.ServeHTTP(w, r)
			return
		}
		h.serve(w, r, route, m[1], m[2])
	})
}

func (h *AssetHandler) serve(w http.ResponseWriter, r *http.Request, route, slug, asset string) {
	app, err := h.store.Apps().GetBySlug(r.Context(), slug)
	if err != nil {
		h.notFound(w, route)
		return
	}

	switch {
	case asset == render.ManifestFile:
		h.manifest(w, r, app, route)
	case asset == render.ServiceWorkerFile:
		h.serviceWorker(w, r, app, route)
	default:
		h.icon(w, r, app, route, strings.TrimPrefix(asset, render.IconsDir+"/"))
	}
}

func (h *AssetHandler) manifest(w http.ResponseWriter, r *http.Request, app *models.App, route string) {
	body, err := h.renderer.Manifest(app)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render manifest", "error", err, "slug", app.Slug)
		h.notFound(w, route)
		return
	}
	writeBody(w, http.StatusOK, contentTypeJSON, body)
}

func (h *AssetHandler) serviceWorker(w http.ResponseWriter, r *http.Request, app *models.App, route string) {
	body, err := h.renderer.ServiceWorker(app)
	if err != nil {
		h.logger.WarnContext(r.Context(), "service worker template missing", "slug", app.Slug)
		h.notFound(w, route)
		return
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	writeBody(w, http.StatusOK, contentTypeJS, body)
}

func (h *AssetHandler) icon(w http.ResponseWriter, r *http.Request, app *models.App, route, file string) {
	asset, err := h.renderer.Icon(app, file)
	if err != nil {
		h.logger.DebugContext(r.Context(), "icon not served", "error", err, "slug", app.Slug)
		h.notFound(w, route)
		return
	}
	w.Header().Set("Cache-Control", asset.CacheControl)
	writeBody(w, http.StatusOK, asset.ContentType, asset.Body)
}

func (h *AssetHandler) notFound(w http.ResponseWriter, route string) {
	writeBody(w, http.StatusNotFound, "text/plain; charset=utf-8", []byte("// Asset not found: "+html.EscapeString(route)))
}
