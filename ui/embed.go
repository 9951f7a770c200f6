// Package ui provides the page templates and server-rendered views of SiApp.
package ui

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// templates contains the default page, manifest, service worker and icon
// templates used when no template directory is configured.
//
//go:embed templates
var templates embed.FS

// DefaultTemplates returns the embedded template filesystem.
func DefaultTemplates() fs.FS {
	fsys, err := fs.Sub(templates, "templates")
	if err != nil {
		panic("failed to get templates subdirectory: " + err.Error())
	}
	return fsys
}

// Templates returns the template filesystem rooted at dir, or the embedded
// defaults when dir is empty.
func Templates(dir string) (fs.FS, error) {
	if dir == "" {
		return DefaultTemplates(), nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template directory: %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}
