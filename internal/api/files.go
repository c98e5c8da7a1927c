package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

var cachedAssets = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true,
	".webp": true, ".gif": true, ".svg": true, ".woff": true, ".woff2": true,
	".glb": true, ".ico": true,
}

// mountFiles serves uploaded images under /images/ and, when configured, the
// static site at /.
func mountFiles(r chi.Router, deps Deps) {
	images := http.StripPrefix("/images/", http.FileServer(http.Dir(deps.UploadDir)))
	r.Handle("/images/*", cacheAssets(images))

	if deps.StaticDir == "" {
		return
	}
	site := http.FileServer(http.Dir(deps.StaticDir))
	r.Handle("/*", cacheAssets(site))
}

// cacheAssets lets browsers keep asset files for twelve hours.
func cacheAssets(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cachedAssets[strings.ToLower(filepath.Ext(r.URL.Path))] {
			w.Header().Set("Cache-Control", "public, max-age=43200")
		}
		next.ServeHTTP(w, r)
	})
}
