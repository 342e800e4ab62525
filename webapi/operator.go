// This file contains the operator endpoints: style catalog reload, base
// model reload, and journal queries. All of them sit behind the TokenGuard.
package webapi

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ai_backend/core"
	"ai_backend/db"
)

// ReloadStylesResponse reports the outcome of a catalog reload.
type ReloadStylesResponse struct {
	Status string `json:"status"`
	Styles int    `json:"styles"`
}

// ActivityResponse summarizes recent journal activity.
type ActivityResponse struct {
	Since  time.Time       `json:"since"`
	Counts []db.StateCount `json:"counts"`
}

// JournalResponse lists recent terminal job records.
type JournalResponse struct {
	Records []core.TransformationRecord `json:"records"`
	Count   int                         `json:"count"`
}

// handleReloadStyles handles POST /operator/styles/reload. The reload goes
// through the scheduler, which holds the accelerator session across the
// snapshot swap; in-flight jobs keep the descriptors they resolved at
// admission.
func (s *Server) handleReloadStyles(w http.ResponseWriter, r *http.Request) {
	count, err := s.jobs.ReloadStyles(r.Context())
	if err != nil {
		s.logger.Error("style reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	s.logger.Info("style catalog reloaded", zap.Int("styles", count))
	writeJSON(w, http.StatusOK, ReloadStylesResponse{Status: "reloaded", Styles: count})
}

// handleReloadModel handles POST /operator/model/reload. A successful reload
// clears the model-unavailable condition and resumes admissions.
func (s *Server) handleReloadModel(w http.ResponseWriter, r *http.Request) {
	if err := s.model.ReloadModel(r.Context()); err != nil {
		s.logger.Error("model reload failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", err.Error())
		return
	}

	s.logger.Info("base model reloaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleJournalRecent handles GET /operator/journal/recent.
// Query parameters:
//   - limit: max records to return (default: 20, max: 100)
//   - client_id: restrict to one client (optional)
func (s *Server) handleJournalRecent(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "journal not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	var (
		records []core.TransformationRecord
		err     error
	)
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		records, err = s.journal.QueryByClient(r.Context(), clientID, limit)
	} else {
		records, err = s.journal.QueryRecent(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("journal query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, JournalResponse{Records: records, Count: len(records)})
}

// handleJournalActivity handles GET /operator/journal/activity.
// Query parameters:
//   - hours: lookback window in hours (default: 24)
func (s *Server) handleJournalActivity(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "journal not configured")
		return
	}

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := s.journal.CountByState(r.Context(), since)
	if err != nil {
		s.logger.Error("journal activity query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ActivityResponse{Since: since, Counts: counts})
}
