// This file contains the public API handlers: job lifecycle, style listing,
// and health. All responses are JSON; taxonomy codes map onto HTTP status
// codes in httpStatusFor.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ai_backend/core"
	"ai_backend/scheduler"
	"ai_backend/styles"
)

// SubmitResponse is the synchronous reply to a job submission.
type SubmitResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

// StylesResponse lists the styles visible to the caller's tier.
type StylesResponse struct {
	Styles []styles.Descriptor `json:"styles"`
	Count  int                 `json:"count"`
}

// HealthResponse is the liveness reply.
type HealthResponse struct {
	Status     string  `json:"status"`
	Version    string  `json:"version"`
	UptimeSecs float64 `json:"uptime_secs"`
}

// ModelHealthResponse reports base model readiness.
type ModelHealthResponse struct {
	Available bool `json:"available"`
}

// AcceleratorHealthResponse reports accelerator telemetry.
type AcceleratorHealthResponse struct {
	Available bool            `json:"available"`
	Current   *TelemetryData  `json:"current,omitempty"`
	History   []TelemetryData `json:"history,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ErrorResponse is the uniform error payload. Code is a taxonomy code or
// "INVALID_REQUEST" for request-shape problems.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleSubmit handles POST /api/transformations.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := parseSubmitRequest(r, s.maxUploadBytes)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, ErrImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "INVALID_REQUEST", err.Error())
		return
	}

	jobID, err := s.jobs.Submit(req)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		JobID: jobID,
		State: scheduler.StateQueued.String(),
	})
}

// handlePoll handles GET /api/transformations/{jobID}.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	status, err := s.jobs.Poll(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleAwait handles GET /api/transformations/{jobID}/await. It blocks
// until the job is terminal or the wait window elapses; on timeout it
// returns the current snapshot with 200 so clients can fall back to polling.
func (s *Server) handleAwait(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	wait := s.awaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 && parsed < wait {
			wait = parsed
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	status, err := s.jobs.Await(ctx, jobID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if status, pollErr := s.jobs.Poll(jobID); pollErr == nil {
				writeJSON(w, http.StatusOK, status)
				return
			}
		}
		s.writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCancel handles DELETE /api/transformations/{jobID}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.jobs.Cancel(jobID); err != nil {
		if errors.Is(err, scheduler.ErrJobTerminal) {
			writeError(w, http.StatusConflict, "CONFLICT", err.Error())
			return
		}
		s.writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancel requested"})
}

// handleStyles handles GET /api/styles. The listing is filtered to what the
// caller's tier may use.
func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	tier := styles.ParseTier(r.Header.Get(headerClientTier))
	listing := s.styleDir.List(tier)
	writeJSON(w, http.StatusOK, StylesResponse{Styles: listing, Count: len(listing)})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    s.version,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
	})
}

// handleModelHealth handles GET /health/model. Returns 503 while the base
// model is unavailable so load balancers can drain.
func (s *Server) handleModelHealth(w http.ResponseWriter, r *http.Request) {
	available := s.model.Available()
	status := http.StatusOK
	if !available {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ModelHealthResponse{Available: available})
}

// handleAcceleratorHealth handles GET /health/accelerator.
// Query parameters:
//   - history: number of telemetry samples to include (default: 0)
func (s *Server) handleAcceleratorHealth(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		writeJSON(w, http.StatusOK, AcceleratorHealthResponse{
			Available: false,
			Error:     "accelerator monitoring not configured",
		})
		return
	}

	resp := AcceleratorHealthResponse{Available: s.telemetry.IsAvailable()}
	if resp.Available {
		current := telemetryData(s.telemetry.CurrentMetrics())
		resp.Current = &current

		if raw := r.URL.Query().Get("history"); raw != "" {
			if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
				samples := s.telemetry.History(limit)
				resp.History = make([]TelemetryData, 0, len(samples))
				for _, m := range samples {
					resp.History = append(resp.History, telemetryData(m))
				}
			}
		}
	} else if err := s.telemetry.LastError(); err != nil {
		resp.Error = err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeTaxonomyError maps a scheduler-path error onto its HTTP status.
func (s *Server) writeTaxonomyError(w http.ResponseWriter, err error) {
	code := scheduler.Code(err)
	status := httpStatusFor(code, err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	writeError(w, status, code, err.Error())
}

// httpStatusFor maps taxonomy codes onto HTTP status codes.
func httpStatusFor(code string, err error) int {
	switch code {
	case scheduler.CodeRateLimited:
		return http.StatusTooManyRequests
	case scheduler.CodeForbidden:
		return http.StatusForbidden
	case scheduler.CodeNotFound:
		return http.StatusNotFound
	case scheduler.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case scheduler.CodeAcceleratorMemory:
		return http.StatusInsufficientStorage
	case scheduler.CodeModelUnavailable, scheduler.CodeStyleUnavailable:
		return http.StatusServiceUnavailable
	case scheduler.CodeCanceled:
		return http.StatusConflict
	default:
		if errors.Is(err, scheduler.ErrShuttingDown) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func telemetryData(m core.AcceleratorMetrics) TelemetryData {
	data := TelemetryData{
		Utilization: m.Utilization,
		Temperature: m.Temperature,
		VRAMUsedMB:  m.VRAMUsedMB,
		VRAMTotalMB: m.VRAMTotalMB,
	}
	if m.VRAMTotalMB > 0 {
		data.VRAMPercent = float64(m.VRAMUsedMB) / float64(m.VRAMTotalMB) * 100
	}
	return data
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already out; nothing left to do.
		return
	}
}

// writeError writes the uniform error payload.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
