package webui

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"eegstream/webui/static"
)

// StaticAssetHandler serves the embedded live view assets under a prefix.
type StaticAssetHandler struct {
	fs          fs.FS
	prefix      string
	cacheMaxAge int
}

// NewStaticAssetHandler serves fsys under prefix. A nil fsys uses the
// embedded assets.
func NewStaticAssetHandler(fsys fs.FS, prefix string, cacheMaxAge int) *StaticAssetHandler {
	if fsys == nil {
		fsys = static.FS()
	}
	if prefix == "" {
		prefix = "/static"
	}
	return &StaticAssetHandler{fs: fsys, prefix: strings.TrimSuffix(prefix, "/"), cacheMaxAge: cacheMaxAge}
}

// RegisterRoutes mounts the handler on mux.
func (h *StaticAssetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(h.prefix+"/", http.StripPrefix(h.prefix, h))
}

// ServeHTTP serves one asset. Directory listings are never served.
func (h *StaticAssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	data, err := fs.ReadFile(h.fs, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	h.write(w, name, data)
}

// ServeIndex serves index.html for the dashboard route.
func (h *StaticAssetHandler) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.fs, "index.html")
	if err != nil {
		http.Error(w, "live view not found", http.StatusNotFound)
		return
	}
	h.write(w, "index.html", data)
}

func (h *StaticAssetHandler) write(w http.ResponseWriter, name string, data []byte) {
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if h.cacheMaxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(h.cacheMaxAge))
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
