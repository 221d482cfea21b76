// Package server is the HTTP surface of the relay: the streaming chat
// endpoint, the widget config endpoint, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sitechat/relay/internal/audit"
	"github.com/sitechat/relay/internal/config"
	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/logging"
	"github.com/sitechat/relay/internal/prompt"
	"github.com/sitechat/relay/internal/ratelimit"
	"github.com/sitechat/relay/internal/store"
	"github.com/sitechat/relay/internal/stream"
	"github.com/sitechat/relay/internal/version"
	"github.com/sitechat/relay/internal/vertex"
)

// tokenSource yields a bearer token for the upstream call.
type tokenSource interface {
	Token() (string, error)
}

// upstreamCaller opens the model stream.
type upstreamCaller interface {
	Open(ctx context.Context, token string, greq *vertex.GenerateRequest) (io.ReadCloser, domain.RetryOutcome, error)
}

// Server is the relay HTTP server.
type Server struct {
	cfg        config.Config
	log        *logging.Logger
	stores     store.Stores
	limiter    *ratelimit.Limiter
	recorder   *audit.Recorder
	creds      tokenSource
	caller     upstreamCaller
	menus      *prompt.MenuFetcher
	transcoder *stream.Transcoder
	metrics    *Metrics

	startedAt  time.Time
	httpServer *http.Server
}

// Option configures the server; used by tests to swap the upstream.
type Option func(*Server)

// WithTokenSource replaces the service-account token source.
func WithTokenSource(ts tokenSource) Option {
	return func(s *Server) { s.creds = ts }
}

// WithCaller replaces the upstream stream caller.
func WithCaller(c upstreamCaller) Option {
	return func(s *Server) { s.caller = c }
}

// New wires a server over the given stores.
func New(cfg config.Config, stores store.Stores, log *logging.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		log:        log.Sub("server"),
		stores:     stores,
		recorder:   audit.New(stores.Logs, stores.Metrics, log),
		menus:      prompt.NewMenuFetcher(nil, log),
		transcoder: stream.NewTranscoder(log),
		metrics:    NewMetrics(),
	}
	s.limiter = ratelimit.New(stores.RateLimits,
		cfg.Limits.MaxRequests,
		time.Duration(cfg.Limits.WindowSeconds)*time.Second,
		log)

	for _, opt := range opts {
		opt(s)
	}
	if s.creds == nil {
		s.creds = vertex.NewCredentials(cfg.Google, log)
	}
	if s.caller == nil {
		s.caller = vertex.NewCaller(cfg.Google, log)
	}
	return s
}

// Handler builds the full route table behind the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("GET /config", s.handleWidgetConfig)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("/", handleNotFound)
	return withMiddleware(mux, s.log)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start listens and serves until the context is cancelled. Read and idle
// timeouts are generous because chat responses are long-lived streams.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Str("model", s.cfg.Google.Model).
		Msg("relay server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down relay server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
		s.recorder.Wait()
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders a classified failure as the caller-facing JSON shape.
func writeError(w http.ResponseWriter, err error) {
	var relErr *domain.RelayError
	if errors.As(err, &relErr) {
		writeJSON(w, relErr.HTTPStatus(), map[string]string{"error": relErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}
