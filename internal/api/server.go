// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/malaria-world/internal/engine"
	"github.com/talgya/malaria-world/internal/observability"
	"github.com/talgya/malaria-world/internal/persistence"
	"github.com/talgya/malaria-world/internal/report"
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB             // optional; history falls back to memory
	Metrics  *observability.SimCollector // optional; /metrics disabled when nil
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	srv *http.Server
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	// Chart rendering is the one expensive public endpoint.
	chartLimiter := NewRateLimiter(60, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/grid", s.handleGrid)
	mux.HandleFunc("/api/v1/config", s.handleConfig)
	mux.HandleFunc("/api/v1/chart.png", RateLimitMiddleware(chartLimiter, s.handleChart))
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/intervention", s.adminOnly(s.handleIntervention))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "metrics", s.Metrics != nil)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no MALARIA_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Stats()
	status := map[string]any{
		"name":             "malaria-world",
		"seed":             s.Sim.Seed,
		"tick":             st.Tick,
		"day":              st.Day,
		"sim_time":         engine.SimTime(st.Tick, s.Sim.Config.Clock.TicksPerDay),
		"speed":            s.Eng.Speed(),
		"running":          s.Eng.Running(),
		"humans":           st.Humans.Total(),
		"humans_infected":  st.Humans.Infected,
		"human_deaths":     st.HumanDeaths,
		"mosquitoes":       st.Mosquitoes.Total(),
		"adult_mosquitoes": st.AdultMosquitoes,
		"larvae":           st.Larvae,
	}
	writeJSON(w, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

// handleStatsHistory serves the daily samples. It reads the database when
// one is attached and the in-memory history otherwise.
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	fromDay := uint64(0)
	toDay := uint64(math.MaxInt64)
	limit := 365

	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.ParseUint(f, 10, 64); err == nil {
			fromDay = v
		}
	}
	if t := r.URL.Query().Get("to"); t != "" {
		if v, err := strconv.ParseUint(t, 10, 64); err == nil {
			toDay = v
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 10000 {
			limit = v
		}
	}

	if s.DB != nil {
		rows, err := s.DB.HistoryRange(fromDay, toDay, limit)
		if err != nil {
			slog.Error("stats history query failed", "error", err)
			// Empty array rather than an error; the table may not have rows yet.
			writeJSON(w, []engine.Sample{})
			return
		}
		if rows == nil {
			rows = []engine.Sample{}
		}
		writeJSON(w, rows)
		return
	}

	rows := []engine.Sample{}
	for _, smp := range s.Sim.History() {
		if smp.Day < fromDay || smp.Day > toDay {
			continue
		}
		if len(rows) == limit {
			break
		}
		rows = append(rows, smp)
	}
	writeJSON(w, rows)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.Events(0)

	// Optional category filter ("death", "birth", "house", "intervention").
	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	if events == nil {
		events = []engine.Event{}
	}

	writeJSON(w, events[start:])
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	cells := s.Sim.Cells()
	if cells == nil {
		cells = []engine.CellView{}
	}
	writeJSON(w, map[string]any{
		"width":  s.Sim.Config.Grid.Width,
		"height": s.Sim.Config.Grid.Height,
		"tick":   s.Sim.CurrentTick(),
		"cells":  cells,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Config)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	if err := report.RenderSEIR(w, s.Sim.History()); err != nil {
		w.Header().Del("Content-Type")
		if errors.Is(err, report.ErrTooFewSamples) {
			http.Error(w, "not enough days simulated yet", http.StatusConflict)
			return
		}
		slog.Error("chart render failed", "error", err)
		http.Error(w, "chart failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		if err := s.Eng.SetSpeed(req.Speed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleIntervention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Type     string `json:"type"`
		Count    int    `json:"count"`
		Infected bool   `json:"infected,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var (
		details string
		err     error
	)
	switch req.Type {
	case "import_cases":
		details, err = s.Sim.ImportCases(req.Count)
	case "release_mosquitoes":
		details, err = s.Sim.ReleaseMosquitoes(req.Count, req.Infected)
	default:
		http.Error(w, "unknown intervention type (use import_cases or release_mosquitoes)", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"success": true,
		"details": details,
		"tick":    s.Sim.CurrentTick(),
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
