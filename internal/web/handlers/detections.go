package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/biometric"
	"go.uber.org/zap"
)

// DetectionsHandler accepts face detections from capture devices
type DetectionsHandler struct {
	pipeline *attendance.Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

// NewDetectionsHandler creates a new detections handler
func NewDetectionsHandler(p *attendance.Pipeline, logger *zap.Logger) *DetectionsHandler {
	return &DetectionsHandler{pipeline: p, logger: logger, now: time.Now}
}

// DetectionRequest is one detection. Timestamp defaults to the receive time;
// devices replaying buffered detections set it explicitly.
type DetectionRequest struct {
	Embedding     []float32  `json:"embedding"`
	FaceAreaRatio float64    `json:"face_area_ratio"`
	LivenessScore float64    `json:"liveness_score"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// Create processes a detection and reports the outcome
func (h *DetectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req DetectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	at := h.now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	res, err := h.pipeline.Process(r.Context(), biometric.Detection{
		Embedding:     req.Embedding,
		FaceAreaRatio: req.FaceAreaRatio,
		LivenessScore: req.LivenessScore,
	}, at)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("processing detection failed", zap.Error(err))
		}
		respondDomainError(w, err)
		return
	}

	status := http.StatusOK
	if res.Punch != nil {
		status = http.StatusCreated
	}
	respondJSON(w, status, detectionResponse(res))
}
