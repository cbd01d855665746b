package webui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingMiddleware_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mw := NewLoggingMiddleware(LoggingMiddlewareConfig{Logger: zap.New(core), LogUserAgent: true})

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/boom":
			w.WriteHeader(http.StatusInternalServerError)
		case "/missing":
			http.NotFound(w, r)
		default:
			w.Write([]byte("hello"))
		}
	}))

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("User-Agent", "probe")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("logged %d entries, want 3", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	wantStatus := []int64{200, 404, 500}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Errorf("entry %d level = %v, want %v", i, e.Level, wantLevels[i])
		}
		fields := e.ContextMap()
		if fields["status"] != wantStatus[i] {
			t.Errorf("entry %d status = %v, want %d", i, fields["status"], wantStatus[i])
		}
		if fields["user_agent"] != "probe" {
			t.Errorf("entry %d user_agent = %v", i, fields["user_agent"])
		}
	}
	if got := entries[0].ContextMap()["bytes"]; got != int64(5) {
		t.Errorf("bytes = %v, want 5", got)
	}
}

func TestLoggingMiddleware_SkipPaths(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mw := NewLoggingMiddleware(LoggingMiddlewareConfig{Logger: zap.New(core), SkipPaths: []string{"/health"}})
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if logs.Len() != 0 {
		t.Errorf("skipped path logged %d entries", logs.Len())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "10.0.0.9"},
		{"remote addr", nil, "192.0.2.1:1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResponseRecorder_HijackUnsupported(t *testing.T) {
	w := &responseRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := w.Hijack(); err == nil {
		t.Error("Hijack() on a recorder expected error")
	}
}
