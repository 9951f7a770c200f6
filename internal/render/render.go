// Package render turns application records into the pages and PWA assets
// served under /<slug>.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/siapp-dev/siapp/internal/models"
)

// Template file names within the template filesystem.
const (
	PageFile          = "index.html"
	ServiceWorkerFile = "sw.js"
	ManifestFile      = "manifest.json"
	IconsDir          = "icons"
	LandingFile       = "landing.html"
	DocsFile          = "docs-apps-script.html"
)

// Cache policies for icon assets.
const (
	CacheDynamicIcon = "public, max-age=3600"
	CacheStaticIcon  = "public, max-age=31536000"
)

// Render errors.
var (
	// ErrTemplateMissing is returned when a required template file is absent.
	ErrTemplateMissing = errors.New("template not found")
	// ErrAssetNotFound is returned for icons that do not exist or cannot be served.
	ErrAssetNotFound = errors.New("asset not found")
)

// Asset is a rendered static file with its response headers.
type Asset struct {
	Body         []byte
	ContentType  string
	CacheControl string
}

var iconTypes = map[string]string{
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".ico":  "image/x-icon",
}

// Substitute replaces every literal {{KEY}} in body with the HTML-escaped
// value of fields[KEY]. Matching is exact and case-sensitive; placeholders
// without a field are left as they are. Replacement is a single pass, so a
// value that itself looks like a placeholder is never expanded.
func Substitute(body string, fields map[string]string) string {
	if len(fields) == 0 {
		return body
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", html.EscapeString(fields[k]))
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// Renderer renders records against templates read from fsys.
type Renderer struct {
	fsys   fs.FS
	logger *slog.Logger
}

// New creates a Renderer over fsys.
func New(fsys fs.FS, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{fsys: fsys, logger: logger}
}

// FS returns the template filesystem.
func (r *Renderer) FS() fs.FS {
	return r.fsys
}

// Page renders the HTML page of app.
func (r *Renderer) Page(app *models.App) ([]byte, error) {
	return r.substitute(PageFile, app)
}

// ServiceWorker renders the service worker script of app.
func (r *Renderer) ServiceWorker(app *models.App) ([]byte, error) {
	return r.substitute(ServiceWorkerFile, app)
}

// Manifest renders the web app manifest of app. Without a manifest template
// a minimal standalone manifest scoped to the app's path is generated.
func (r *Renderer) Manifest(app *models.App) ([]byte, error) {
	body, err := r.substitute(ManifestFile, app)
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, ErrTemplateMissing) {
		return nil, err
	}

	scope := app.Path() + "/"
	manifest := struct {
		Name            string `json:"name"`
		ShortName       string `json:"short_name"`
		StartURL        string `json:"start_url"`
		Display         string `json:"display"`
		ThemeColor      string `json:"theme_color"`
		BackgroundColor string `json:"background_color"`
		Scope           string `json:"scope"`
	}{
		Name:            app.Name,
		ShortName:       app.ShortName,
		StartURL:        scope,
		Display:         "standalone",
		ThemeColor:      "#ffffff",
		BackgroundColor: "#ffffff",
		Scope:           scope,
	}
	return marshalPretty(manifest)
}

// Icon returns the icon named file for app. SVG icons are substituted like
// pages; raster icons are served unchanged.
func (r *Renderer) Icon(app *models.App, file string) (*Asset, error) {
	name, ok := iconPath(file)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, file)
	}

	ext := strings.ToLower(path.Ext(name))
	contentType, ok := iconTypes[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported icon type %q", ErrAssetNotFound, ext)
	}

	data, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Error("failed to read icon", "error", err, "file", name)
		}
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, file)
	}

	if ext == ".svg" {
		return &Asset{
			Body:         []byte(Substitute(string(data), app.Fields())),
			ContentType:  contentType,
			CacheControl: CacheDynamicIcon,
		}, nil
	}
	return &Asset{
		Body:         data,
		ContentType:  contentType,
		CacheControl: CacheStaticIcon,
	}, nil
}

// Landing returns the landing page served at the root path.
func (r *Renderer) Landing() ([]byte, error) {
	return r.read(LandingFile)
}

// Docs returns the Apps Script integration guide.
func (r *Renderer) Docs() ([]byte, error) {
	return r.read(DocsFile)
}

// AppJSON encodes app as indented JSON without escaping HTML characters.
func AppJSON(app *models.App) ([]byte, error) {
	return marshalPretty(app)
}

func (r *Renderer) substitute(name string, app *models.App) ([]byte, error) {
	data, err := r.read(name)
	if err != nil {
		return nil, err
	}
	return []byte(Substitute(string(data), app.Fields())), nil
}

func (r *Renderer) read(name string) ([]byte, error) {
	data, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, name)
		}
		r.logger.Error("failed to read template", "error", err, "file", name)
		return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, name)
	}
	return data, nil
}

// iconPath maps a request-supplied icon name to a path inside IconsDir,
// rejecting anything that would escape it.
func iconPath(file string) (string, bool) {
	if file == "" || strings.Contains(file, `\`) {
		return "", false
	}
	name := IconsDir + "/" + file
	if !fs.ValidPath(name) || path.Clean(name) != name {
		return "", false
	}
	return name, true
}

func marshalPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
