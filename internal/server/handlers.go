package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/aristath/vantage/internal/domain"
	"github.com/aristath/vantage/internal/modules/analysis"
	"github.com/go-chi/chi/v5"
)

const maxListLimit = 100

// handleHealth reports liveness plus run-store reachability. A broken
// store means the engine cannot persist reports, so it answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "vantage",
	}

	if s.db != nil {
		if err := s.db.Conn().PingContext(r.Context()); err != nil {
			response["status"] = "degraded"
			response["database"] = err.Error()
			s.writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		response["database"] = "ok"
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleStatus serves the engine status snapshot alongside market
// calendar state and process runtime numbers.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"engine": s.status.Snapshot(),
		"market": s.calendar.Status(time.Now()),
		"runtime": map[string]interface{}{
			"alloc_mb":   m.Alloc / 1024 / 1024,
			"sys_mb":     m.Sys / 1024 / 1024,
			"num_gc":     m.NumGC,
			"goroutines": runtime.NumGoroutine(),
		},
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleListRuns serves recent runs, newest first. The limit query
// parameter caps the page size.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	runs, err := s.runs.List(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleRunByID serves one stored run.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.runs.ByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleLatestRun serves the most recent stored run.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Latest()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "no runs recorded yet")
			return
		}
		s.log.Error().Err(err).Msg("Failed to load latest run")
		s.writeError(w, http.StatusInternalServerError, "failed to load latest run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleLatestBundle serves only the analysis bundle of the most
// recent run, for consumers that render layers themselves.
func (s *Server) handleLatestBundle(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Latest()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "no runs recorded yet")
			return
		}
		s.log.Error().Err(err).Msg("Failed to load latest bundle")
		s.writeError(w, http.StatusInternalServerError, "failed to load latest bundle")
		return
	}

	s.writeJSON(w, http.StatusOK, run.Bundle)
}

// handleTriggerRun runs a full analysis synchronously and returns the
// assembled report. An already-running analysis answers 409; a run
// where no layer produced a signal answers 503.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	rep, err := s.trigger.RunAnalysis(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, analysis.ErrRunInProgress):
			s.writeError(w, http.StatusConflict, "an analysis run is already in progress")
		case errors.Is(err, domain.ErrNoUsableSignal):
			s.writeError(w, http.StatusServiceUnavailable, "no layer produced a usable signal")
		default:
			s.log.Error().Err(err).Msg("Triggered run failed")
			s.writeError(w, http.StatusInternalServerError, "analysis run failed")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, rep)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
