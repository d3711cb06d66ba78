package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/constants"
	"go.uber.org/zap"
)

// PunchesHandler exposes the raw punch audit trail
type PunchesHandler struct {
	pipeline *attendance.Pipeline
	logger   *zap.Logger
}

// NewPunchesHandler creates a new punches handler
func NewPunchesHandler(p *attendance.Pipeline, logger *zap.Logger) *PunchesHandler {
	return &PunchesHandler{pipeline: p, logger: logger}
}

// ResolvePunchRequest attributes an unmatched punch to a shift
type ResolvePunchRequest struct {
	ShiftCode string `json:"shift_code"`
}

// Recent returns the newest punches, ?limit= capped at MaxRecentPunches
func (h *PunchesHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultRecentPunches
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, constants.MaxRecentPunches)
	}

	punches, err := h.pipeline.Stores().Punches.ListRecentPunches(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing recent punches failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list punches")
		return
	}
	respondJSON(w, http.StatusOK, punchResponses(punches))
}

// Unmatched returns punches awaiting manual shift resolution
func (h *PunchesHandler) Unmatched(w http.ResponseWriter, r *http.Request) {
	punches, err := h.pipeline.Stores().Punches.ListUnmatchedPunches(r.Context())
	if err != nil {
		h.logger.Error("listing unmatched punches failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list punches")
		return
	}
	respondJSON(w, http.StatusOK, punchResponses(punches))
}

// Resolve attributes an unmatched punch to a shift and returns the updated record
func (h *PunchesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolvePunchRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ShiftCode == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	rec, err := h.pipeline.ResolvePunch(r.Context(), id, req.ShiftCode)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("resolving punch failed", zap.String("punch_id", sanitizeForLog(id)), zap.Error(err))
		}
		respondDomainError(w, err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, recordResponse(*rec))
}
