// Package api serves the receiver's JSON status endpoints on the admin
// listener.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/modes1090/internal/config"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/sink/sqlitestore"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// RunStore is the part of the sqlite store the run endpoints read.
type RunStore interface {
	Runs(ctx context.Context) ([]sqlitestore.RunSummary, error)
	FormatCounts(ctx context.Context, runID string) ([]sqlitestore.FormatCount, error)
}

type Server struct {
	counters *monitoring.Counters
	cfg      *config.ReceiverConfig
	store    RunStore // nil without a sqlite sink
	started  time.Time

	mu    sync.RWMutex
	runID string
}

func NewServer(counters *monitoring.Counters, cfg *config.ReceiverConfig, store RunStore) *Server {
	return &Server{
		counters: counters,
		cfg:      cfg,
		store:    store,
		started:  time.Now(),
	}
}

// SetRunID records the run currently decoding.
func (s *Server) SetRunID(id string) {
	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()
}

func (s *Server) currentRun() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// AttachRoutes mounts the API on mux.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}/formats", s.showFormats)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter { return lrw.ResponseWriter }

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[HTTP] [%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Status is the body of /api/status.
type Status struct {
	RunID    string              `json:"run_id"`
	Uptime   string              `json:"uptime"`
	Devices  int                 `json:"devices"`
	Counters monitoring.Snapshot `json:"counters"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	devices := len(s.cfg.Devices)
	if devices == 0 {
		devices = 1 // the default device
	}
	writeJSON(w, http.StatusOK, Status{
		RunID:    s.currentRun(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Devices:  devices,
		Counters: s.counters.Snapshot(),
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "no record store configured")
		return
	}
	runs, err := s.store.Runs(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []sqlitestore.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) showFormats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "no record store configured")
		return
	}
	runID := r.PathValue("id")
	if runID == "current" {
		runID = s.currentRun()
	}
	counts, err := s.store.FormatCounts(r.Context(), runID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to count formats: "+err.Error())
		return
	}
	if counts == nil {
		counts = []sqlitestore.FormatCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("[HTTP] failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
