package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuseid-project/fuseid/internal/core"
)

// Server exposes the engine's counters and rule set over HTTP for operator
// tooling and dashboards.
type Server struct {
	engine *core.Engine
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates the status API server.
func NewServer(engine *core.Engine) *Server {
	s := &Server{
		engine: engine,
		logger: engine.Logger.With().Str("component", "api_server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/correlator", s.handleCorrelator)
	mux.HandleFunc("/api/v1/rules", s.handleRules)
	mux.HandleFunc("/api/v1/alerts/recent", s.handleRecentAlerts)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", engine.Config.Server.Host, engine.Config.Server.Port),
		Handler:      loggingMiddleware(mux, s.logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving the API in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("status API starting")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("status API error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"bus_connected": s.engine.Bus != nil && s.engine.Bus.IsConnected(),
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := map[string]interface{}{
		"pipeline":   s.engine.Dispatcher.Stats(),
		"dedup_size": s.engine.Dedup.Size(),
	}
	// Bus is nil until the engine has started.
	if s.engine.Bus != nil {
		out["bus"] = s.engine.Bus.GetMetrics()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCorrelator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Correlator.Stats())
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rules := s.engine.Correlator.Rules()
	out := make([]map[string]interface{}, 0, len(rules))
	for _, rule := range rules {
		patterns := make([]map[string]string, 0, len(rule.Required))
		for _, p := range rule.Required {
			patterns = append(patterns, map[string]string{
				"source":  string(p.Source),
				"pattern": p.Pattern,
			})
		}
		out = append(out, map[string]interface{}{
			"rule_id":             rule.RuleID,
			"name":                rule.Name,
			"description":         rule.Description,
			"severity":            rule.Severity.String(),
			"time_window_seconds": rule.TimeWindow,
			"required_events":     patterns,
			"same_ip":             rule.SameIP,
			"same_host":           rule.SameHost,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": out})
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	alerts := s.engine.Recent.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loggingMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
