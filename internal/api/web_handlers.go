package api

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/irampton/Lembas/internal/http/response"
)

const msgClientMissing = "Client build not found."

// Cache-Control header values.
const (
	CacheOneWeek = "public, max-age=604800"
	CacheNoStore = "no-cache"
)

// handleStatic serves the built client. Unknown paths fall back to
// index.html so client-side routes survive a reload.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed.", s.logger)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		response.NotFound(w, "Not found.", s.logger)
		return
	}

	index := filepath.Join(s.staticDir, "index.html")
	if s.staticDir == "" || !isFile(index) {
		response.ServiceUnavailable(w, msgClientMissing, s.logger)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name != "" && fs.ValidPath(name) {
		file := filepath.Join(s.staticDir, filepath.FromSlash(name))
		if isFile(file) {
			if strings.HasPrefix(name, "assets/") {
				w.Header().Set("Cache-Control", CacheOneWeek)
			}
			http.ServeFile(w, r, file)
			return
		}
	}

	w.Header().Set("Cache-Control", CacheNoStore)
	http.ServeFile(w, r, index)
}

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}
