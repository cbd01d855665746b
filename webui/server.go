package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"eegstream/metrics"
	"eegstream/pipeline"
)

// Pinger is checked by /health; *db.Database implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the live view HTTP server. It wires the dashboard API, the
// WebSocket broadcaster, the sample feed and the static assets behind the
// logging middleware.
type Server struct {
	httpServer  *http.Server
	mux         *http.ServeMux
	config      ServerConfig
	logger      *zap.Logger
	api         *DashboardAPI
	broadcaster *Broadcaster
	feed        *SampleFeed
	window      *DisplayWindow
	store       *metrics.Store
	database    Pinger

	mu       sync.Mutex
	listener net.Listener
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// Addr is the listen address (default: "127.0.0.1:8090")
	Addr string
	// DisplayPoints is the live plot width (default: 250)
	DisplayPoints int
	// FrameInterval is how often samples are pushed (default: 40ms)
	FrameInterval   time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// LogSkipPaths are not request-logged
	LogSkipPaths []string
	VersionInfo  VersionInfo
}

// DefaultServerConfig returns the default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            "127.0.0.1:8090",
		DisplayPoints:   DefaultDisplayPoints,
		FrameInterval:   DefaultFrameInterval,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogSkipPaths:    []string{"/health", "/metrics"},
		VersionInfo:     VersionInfo{Version: "0.0.0"},
	}
}

// ServerDeps are the components the server reads from. Only Store is
// required.
type ServerDeps struct {
	Store    *metrics.Store
	Sessions SessionStore
	Database Pinger
	// Gatherer enables /metrics when set
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewServer creates the server. It does not listen until Start.
func NewServer(config ServerConfig, deps ServerDeps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("webui: metrics store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	def := DefaultServerConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.VersionInfo.Version == "" {
		config.VersionInfo = def.VersionInfo
	}

	logger := deps.Logger
	window := NewDisplayWindow(config.DisplayPoints)
	broadcaster := NewBroadcaster(BroadcasterConfig{Logger: logger.Named("ws")})

	s := &Server{
		mux:         http.NewServeMux(),
		config:      config,
		logger:      logger,
		broadcaster: broadcaster,
		feed:        NewSampleFeed(broadcaster, config.FrameInterval),
		window:      window,
		store:       deps.Store,
		database:    deps.Database,
		api: NewDashboardAPI(deps.Store, window, deps.Sessions, DashboardAPIConfig{
			VersionInfo: config.VersionInfo,
			Logger:      logger,
		}),
	}
	broadcaster.OnConnect(s.initialMessage)
	s.setupRoutes(deps.Gatherer)

	middleware := NewLoggingMiddleware(LoggingMiddlewareConfig{
		Logger:    logger.Named("http"),
		SkipPaths: config.LogSkipPaths,
	})
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      middleware.Handler(s.mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}
	return s, nil
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	assets := NewStaticAssetHandler(nil, "/static", 0)

	s.mux.HandleFunc("/health", s.handleHealth)
	assets.RegisterRoutes(s.mux)
	s.api.RegisterRoutes(s.mux)
	s.mux.HandleFunc("/ws", s.broadcaster.HandleConnection)
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		assets.ServeIndex(w, r)
	})
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Pipeline string `json:"pipeline"`
	Database string `json:"database,omitempty"`
}

// handleHealth reports 503 only when the database is unreachable; a
// stopped pipeline is a state, not a failure of the server.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Pipeline: s.store.Status().Health}
	code := http.StatusOK
	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.database.Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Database = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) initialMessage() WSMessage {
	samples, first := s.window.Snapshot()
	return NewWSMessage(MessageTypeInitial, InitialData{
		Window: SamplesData{FirstIndex: first, Samples: samples},
		Points: s.window.Cap(),
		Status: s.store.Status(),
	})
}

// Sink returns the consumer sink feeding the display window and the
// WebSocket clients.
func (s *Server) Sink() pipeline.Sink {
	return pipeline.MultiSink{s.window, s.feed}
}

// StatsCallback returns a metrics collector callback broadcasting the
// pipeline status.
func (s *Server) StatsCallback() func(pipeline.Snapshot) {
	return StatsPublisher(s.broadcaster, s.store)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Window returns the display window.
func (s *Server) Window() *DisplayWindow { return s.window }

// Broadcaster returns the WebSocket hub.
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// Start listens on the configured address and serves until Shutdown. The
// broadcaster and feed run until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("webui: listen on %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.broadcaster.Start(ctx)
	go s.feed.Run(ctx)

	s.logger.Info("live view listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webui: serve: %w", err)
	}
	return nil
}

// Addr returns the bound address once Start is listening, otherwise the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// Shutdown stops accepting requests and waits for active ones, bounded by
// ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("webui: shutdown: %w", err)
	}
	s.logger.Info("live view stopped")
	return nil
}
