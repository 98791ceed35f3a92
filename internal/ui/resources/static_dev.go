//go:build dev

package resources

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
)

// staticDir locates static/ next to this source file so `-tags dev` builds
// pick up CSS edits without a rebuild.
func staticDir() string {
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		return StaticDirectoryPath
	}
	return filepath.Join(filepath.Dir(self), "static")
}

// Handler serves static files from disk.
func Handler() http.Handler {
	dir := staticDir()
	slog.Debug("serving static assets from disk", "path", dir)
	return http.StripPrefix("/static/", http.FileServer(http.FS(os.DirFS(dir))))
}
