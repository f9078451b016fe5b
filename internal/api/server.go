// Package api serves validation over HTTP for deployment tooling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/events"
	"github.com/AaronLay10/pipecheck/internal/storage/postgres"
	"github.com/AaronLay10/pipecheck/internal/validate"
	"github.com/AaronLay10/pipecheck/internal/version"
)

const (
	defaultMaxBodySize = 1 << 20
	defaultCacheTTL    = 5 * time.Minute
	shutdownTimeout    = 5 * time.Second
)

// RunStore is the run history used by /runs and /ready.
type RunStore interface {
	Recent(ctx context.Context, limit int) ([]postgres.RunRow, error)
	Ping(ctx context.Context) error
}

// Broker reports the verdict publisher's connection state.
type Broker interface {
	IsConnected() bool
}

// Options wires a Server. Validator and Bus are required.
type Options struct {
	Validator *validate.Validator
	Bus       *events.Bus
	History   RunStore
	Broker    Broker
	Auth      Auth
	TLS       TLSConfig
	Logger    *zap.Logger

	CacheTTL    time.Duration
	MaxBodySize int64

	RequirePostgres bool
	RequireMQTT     bool
}

// Server is the HTTP front end.
type Server struct {
	validator *validate.Validator
	bus       *events.Bus
	history   RunStore
	broker    Broker
	auth      Auth
	tls       TLSConfig
	log       *zap.Logger

	cache       *gocache.Cache
	maxBodySize int64

	requirePostgres bool
	requireMQTT     bool

	metrics *metrics
}

// NewServer builds a Server from opts.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(events.DefaultBufferSize)
	}
	v := opts.Validator
	if v == nil {
		v = validate.New()
	}

	return &Server{
		validator:       v,
		bus:             bus,
		history:         opts.History,
		broker:          opts.Broker,
		auth:            opts.Auth,
		tls:             opts.TLS,
		log:             log,
		cache:           gocache.New(ttl, 2*ttl),
		maxBodySize:     maxBody,
		requirePostgres: opts.RequirePostgres,
		requireMQTT:     opts.RequireMQTT,
		metrics:         newMetrics(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.HandleFunc("/validate", s.auth.RequireAnyRole(s.validateHandler))
	mux.HandleFunc("/events", s.auth.RequireAnyRole(s.eventsHandler))
	mux.HandleFunc("/ws/events", s.auth.RequireAnyRole(s.wsEventsHandler))
	mux.HandleFunc("/runs", s.auth.RequireAdmin(s.runsHandler))
	return mux
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	tlsCfg, err := s.tls.Load()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", tlsCfg != nil),
			zap.Bool("auth", s.auth.Enabled()))
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()
	_, _ = s.bus.Emit("info", events.SystemStartup, "api started", map[string]any{"port": port, "version": version.Version})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		_, _ = s.bus.Emit("error", events.SystemError, "api server failed", map[string]any{"error": err.Error()})
		return err
	case <-ctx.Done():
	}

	_, _ = s.bus.Emit("info", events.SystemShutdown, "api stopping", nil)
	s.bus.CloseAllSubscribers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "pipecheck",
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, s.bus.RecentEvents(n))
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run history not configured"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("history query failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
