package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"eegstream/db"
	"eegstream/metrics"
)

// SessionStore is the read side of the recorder, implemented by
// *db.Repository.
type SessionStore interface {
	ListSessions(ctx context.Context, limit int) ([]db.Session, error)
	GetSession(ctx context.Context, id string) (db.Session, error)
	SessionSnapshots(ctx context.Context, id string, limit int) ([]db.StageSnapshotRecord, error)
	CountSamples(ctx context.Context, id string) (int64, error)
}

// DashboardAPI serves the JSON endpoints of the live view:
//
//	GET /api/status          pipeline health and counters
//	GET /api/stages          per-stage history (?stage=, ?limit=)
//	GET /api/window          the display window (?n=)
//	GET /api/sessions        recorded sessions (?limit=)
//	GET /api/sessions/{id}   one session with its snapshots
type DashboardAPI struct {
	store        *metrics.Store
	window       *DisplayWindow
	sessions     SessionStore
	defaultLimit int
	maxLimit     int
	versionInfo  VersionInfo
	logger       *zap.Logger
}

// VersionInfo is reported by /api/status.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

// DashboardAPIConfig configures the DashboardAPI.
type DashboardAPIConfig struct {
	// DefaultLimit is used when a list request has no limit (default: 20)
	DefaultLimit int
	// MaxLimit caps requested limits (default: 720, one hour of 5s samples)
	MaxLimit    int
	VersionInfo VersionInfo
	Logger      *zap.Logger
}

// DefaultDashboardAPIConfig returns the default configuration.
func DefaultDashboardAPIConfig() DashboardAPIConfig {
	return DashboardAPIConfig{
		DefaultLimit: 20,
		MaxLimit:     720,
		VersionInfo:  VersionInfo{Version: "0.0.0"},
	}
}

// NewDashboardAPI creates the API. sessions may be nil when recording is
// disabled.
func NewDashboardAPI(store *metrics.Store, window *DisplayWindow, sessions SessionStore, config DashboardAPIConfig) *DashboardAPI {
	if config.DefaultLimit < 1 {
		config.DefaultLimit = 20
	}
	if config.MaxLimit < 1 {
		config.MaxLimit = 720
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &DashboardAPI{
		store:        store,
		window:       window,
		sessions:     sessions,
		defaultLimit: config.DefaultLimit,
		maxLimit:     config.MaxLimit,
		versionInfo:  config.VersionInfo,
		logger:       config.Logger,
	}
}

// RegisterRoutes registers all API routes on mux.
func (api *DashboardAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", api.HandleStatus)
	mux.HandleFunc("/api/stages", api.HandleStages)
	mux.HandleFunc("/api/window", api.HandleWindow)
	mux.HandleFunc("/api/sessions", api.HandleSessions)
	mux.HandleFunc("/api/sessions/", api.HandleSession)
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	metrics.PipelineStatus
	BuildDate   string  `json:"build_date,omitempty"`
	GitCommit   string  `json:"git_commit,omitempty"`
	UptimeHuman string  `json:"uptime_human"`
	UptimeSecs  float64 `json:"uptime_secs"`
	Recording   bool    `json:"recording"`
}

// HandleStatus handles GET /api/status.
func (api *DashboardAPI) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !api.allowGet(w, r) {
		return
	}

	status := api.store.Status()
	status.Version = api.versionInfo.Version
	api.writeJSON(w, http.StatusOK, StatusResponse{
		PipelineStatus: status,
		BuildDate:      api.versionInfo.BuildDate,
		GitCommit:      api.versionInfo.GitCommit,
		UptimeHuman:    FormatDuration(status.Uptime),
		UptimeSecs:     status.Uptime.Seconds(),
		Recording:      api.sessions != nil,
	})
}

// StagesResponse is the body of /api/stages.
type StagesResponse struct {
	Stages  []string                         `json:"stages"`
	History map[string][]metrics.StageSample `json:"history"`
	Limit   int                              `json:"limit"`
}

// HandleStages handles GET /api/stages. Without ?stage= it returns the
// history of every stage.
func (api *DashboardAPI) HandleStages(w http.ResponseWriter, r *http.Request) {
	if !api.allowGet(w, r) {
		return
	}

	limit := api.limit(r, "limit")
	names := api.store.StageNames()
	if stage := r.URL.Query().Get("stage"); stage != "" {
		found := false
		for _, n := range names {
			if n == stage {
				found = true
				break
			}
		}
		if !found {
			api.writeError(w, http.StatusNotFound, "unknown stage "+strconv.Quote(stage))
			return
		}
		names = []string{stage}
	}

	history := make(map[string][]metrics.StageSample, len(names))
	for _, n := range names {
		history[n] = api.store.History(n, limit)
	}
	api.writeJSON(w, http.StatusOK, StagesResponse{Stages: names, History: history, Limit: limit})
}

// WindowResponse is the body of /api/window.
type WindowResponse struct {
	SamplesData
	Points int   `json:"points"`
	Total  int64 `json:"total"`
}

// HandleWindow handles GET /api/window.
func (api *DashboardAPI) HandleWindow(w http.ResponseWriter, r *http.Request) {
	if !api.allowGet(w, r) {
		return
	}

	n := api.window.Cap()
	if s := r.URL.Query().Get("n"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 0 {
			api.writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	samples, first := api.window.Last(n)
	api.writeJSON(w, http.StatusOK, WindowResponse{
		SamplesData: SamplesData{FirstIndex: first, Samples: samples},
		Points:      api.window.Cap(),
		Total:       api.window.Total(),
	})
}

// SessionsResponse is the body of /api/sessions.
type SessionsResponse struct {
	Sessions []db.Session `json:"sessions"`
	Count    int          `json:"count"`
	Limit    int          `json:"limit"`
}

// HandleSessions handles GET /api/sessions.
func (api *DashboardAPI) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if !api.allowGet(w, r) || !api.requireSessions(w) {
		return
	}

	limit := api.limit(r, "limit")
	sessions, err := api.sessions.ListSessions(r.Context(), limit)
	if err != nil {
		api.internalError(w, "failed to list sessions", err)
		return
	}
	api.writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions, Count: len(sessions), Limit: limit})
}

// SessionResponse is the body of /api/sessions/{id}.
type SessionResponse struct {
	Session   db.Session               `json:"session"`
	Duration  string                   `json:"duration"`
	Samples   int64                    `json:"samples"`
	Snapshots []db.StageSnapshotRecord `json:"snapshots"`
}

// HandleSession handles GET /api/sessions/{id}.
func (api *DashboardAPI) HandleSession(w http.ResponseWriter, r *http.Request) {
	if !api.allowGet(w, r) || !api.requireSessions(w) {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		api.writeError(w, http.StatusNotFound, "session id required")
		return
	}

	ctx := r.Context()
	session, err := api.sessions.GetSession(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		api.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		api.internalError(w, "failed to load session", err)
		return
	}

	snapshots, err := api.sessions.SessionSnapshots(ctx, id, api.limit(r, "snapshots"))
	if err != nil {
		api.internalError(w, "failed to load snapshots", err)
		return
	}
	samples, err := api.sessions.CountSamples(ctx, id)
	if err != nil {
		api.internalError(w, "failed to count samples", err)
		return
	}

	end := session.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	api.writeJSON(w, http.StatusOK, SessionResponse{
		Session:   session,
		Duration:  FormatDuration(end.Sub(session.StartedAt)),
		Samples:   samples,
		Snapshots: snapshots,
	})
}

// limit parses a positive integer query parameter, falling back to the
// default and capping at the maximum.
func (api *DashboardAPI) limit(r *http.Request, param string) int {
	limit := api.defaultLimit
	if s := r.URL.Query().Get(param); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return min(limit, api.maxLimit)
}

func (api *DashboardAPI) allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (api *DashboardAPI) requireSessions(w http.ResponseWriter) bool {
	if api.sessions == nil {
		api.writeError(w, http.StatusServiceUnavailable, "recording is disabled")
		return false
	}
	return true
}

func (api *DashboardAPI) internalError(w http.ResponseWriter, msg string, err error) {
	api.logger.Error(msg, zap.Error(err))
	api.writeError(w, http.StatusInternalServerError, msg)
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (api *DashboardAPI) writeJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

func (api *DashboardAPI) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing useful to do on failure.
	_ = json.NewEncoder(w).Encode(data)
}
