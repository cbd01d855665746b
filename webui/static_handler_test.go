package webui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestStaticAssetHandler_ServesFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":  {Data: []byte("<html>live</html>")},
		"js/live.js":  {Data: []byte("console.log(1)")},
		"css/app.css": {Data: []byte("body{}")},
	}
	mux := http.NewServeMux()
	NewStaticAssetHandler(fsys, "/assets/", 3600).RegisterRoutes(mux)

	tests := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/assets/js/live.js", http.StatusOK, "javascript"},
		{"/assets/css/app.css", http.StatusOK, "text/css"},
		{"/assets/index.html", http.StatusOK, "text/html"},
		{"/assets/missing.js", http.StatusNotFound, ""},
		{"/assets/js", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, tt.contentType) {
				t.Errorf("Content-Type = %q, want it to contain %q", ct, tt.contentType)
			}
			if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=3600" {
				t.Errorf("Cache-Control = %q", cc)
			}
		})
	}
}

func TestStaticAssetHandler_MethodAndIndex(t *testing.T) {
	h := NewStaticAssetHandler(fstest.MapFS{}, "", 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x.js", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("index without index.html = %d, want 404", rec.Code)
	}
}

func TestStaticAssetHandler_EmbeddedDefaults(t *testing.T) {
	h := NewStaticAssetHandler(nil, "", 0)

	rec := httptest.NewRecorder()
	h.ServeIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("embedded index status = %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
}

func TestWSMessage_Encoding(t *testing.T) {
	msg := NewSamplesMessage(42, []float32{0.5, -0.25})
	if msg.Type != MessageTypeSamples {
		t.Errorf("type = %q", msg.Type)
	}
	if time.Since(msg.Timestamp) > time.Minute {
		t.Errorf("timestamp not set: %v", msg.Timestamp)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Type string `json:"type"`
		Data struct {
			FirstIndex int64     `json:"first_index"`
			Samples    []float32 `json:"samples"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Data.FirstIndex != 42 || len(decoded.Data.Samples) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}

	errMsg := NewErrorMessage("lagging", "client fell behind")
	if errMsg.Type != MessageTypeError {
		t.Errorf("error message type = %q", errMsg.Type)
	}
}
