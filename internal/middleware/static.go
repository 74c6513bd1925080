package middleware

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Static serves files from dir and hands every other request to the next
// handler. Only GET and HEAD are considered, directories are never listed or
// indexed, and dotfiles are not served.
func Static(dir string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			file, ok := staticFile(dir, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			http.ServeFile(w, r, file)
		})
	}
}

// staticFile maps a URL path to a regular file under dir.
func staticFile(dir, urlPath string) (string, bool) {
	if strings.HasSuffix(urlPath, "/") || strings.Contains(urlPath, "\x00") {
		return "", false
	}

	clean := path.Clean("/" + urlPath)
	for _, segment := range strings.Split(clean, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", false
		}
	}

	file := filepath.Join(dir, filepath.FromSlash(clean))
	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return file, true
}
