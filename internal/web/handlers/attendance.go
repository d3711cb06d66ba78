package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/evoface/internal/attendance"
	"go.uber.org/zap"
)

// AttendanceHandler runs maintenance over daily records
type AttendanceHandler struct {
	pipeline *attendance.Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(p *attendance.Pipeline, logger *zap.Logger) *AttendanceHandler {
	return &AttendanceHandler{pipeline: p, logger: logger, now: time.Now}
}

// FinalizeResponse reports how many records were finalized
type FinalizeResponse struct {
	Finalized int `json:"finalized"`
}

// Finalize marks every record of a closed business day as finalized
func (h *AttendanceHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	n, err := h.pipeline.Finalize(r.Context(), h.now())
	if err != nil {
		h.logger.Error("finalizing records failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to finalize records")
		return
	}
	respondJSON(w, http.StatusOK, FinalizeResponse{Finalized: n})
}
