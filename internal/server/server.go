// Package server provides the local preview server for moyu.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/moyu/internal/metrics"
	"github.com/ayusman/moyu/internal/server/api"
	"github.com/ayusman/moyu/internal/store"
)

const shutdownTimeout = 2 * time.Second

//go:embed static/index.html
var indexHTML []byte

// Config holds the server configuration. Every field is optional; routes whose
// dependency is missing are not registered.
type Config struct {
	StaticDir string
	Source    Source
	Control   Control
	Store     *store.Store
	Metrics   *metrics.Metrics
}

// Server represents the HTTP server for the moyu preview.
type Server struct {
	config Config
	router *httprouter.Router
	hub    *StateHub
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: httprouter.New(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)

	if s.config.Source != nil {
		s.router.GET("/api/state", s.handleState)
		s.router.Handler(http.MethodGet, "/api/stream", NewStreamHandler(s.config.Source, s.config.Metrics))

		s.hub = NewStateHub(s.State, stateInterval)
		s.router.Handler(http.MethodGet, "/api/ws", s.hub)
	}

	if s.config.Control != nil {
		detection := api.NewDetectionHandler(s.config.Control)
		s.router.GET("/api/detection", detection.Get)
		s.router.PUT("/api/detection", detection.Put)
	}

	if s.config.Store != nil {
		alerts := api.NewAlertHandler(s.config.Store)
		s.router.GET("/api/alerts", alerts.List)
		s.router.GET("/api/alerts/:id", alerts.Get)
	}

	if s.config.Metrics != nil {
		s.router.Handler(http.MethodGet, "/metrics", s.config.Metrics.Handler())
	}

	// Static files replace the built-in preview page
	if s.config.StaticDir != "" {
		s.router.NotFound = http.FileServer(http.Dir(s.config.StaticDir))
	} else if s.config.Source != nil {
		s.router.GET("/", s.handleIndex)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsed    uint64  `json:"memory_used"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	response := healthResponse{
		Status:     "ok",
		Uptime:     time.Since(s.start).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	// Percent since the previous call; the first call may report 0.
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		response.CPUPercent = percentages[0]
	} else if err != nil {
		log.WithError(err).Debug("CPU usage unavailable")
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		response.MemoryPercent = vm.UsedPercent
		response.MemoryUsed = vm.Used
	} else {
		log.WithError(err).Debug("Memory usage unavailable")
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// Run serves on addr until ctx is cancelled, then shuts down. Open streams and
// websockets are closed on shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Infof("Preview server listening on http://%s", ln.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	cancel()
	s.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Preview server shutdown")
	}
	return nil
}

// Close stops the websocket broadcaster and disconnects its clients.
func (s *Server) Close() {
	if s.hub != nil {
		s.hub.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Debug("Failed to encode response")
	}
}
