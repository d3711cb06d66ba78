// Package biometric matches face embeddings against employee templates and
// evolves those templates from confidently matched samples.
package biometric

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidDetection is returned for detections that cannot be matched at all.
var ErrInvalidDetection = errors.New("invalid detection")

// Detection is one face found in a frame by the feature source.
type Detection struct {
	Embedding     []float32 `json:"embedding"`
	FaceAreaRatio float64   `json:"face_area_ratio"`
	LivenessScore float64   `json:"liveness_score"`
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidateEmbedding checks that e is non-empty, finite, not all zeros and,
// when dim > 0, exactly dim long.
func ValidateEmbedding(e []float32, dim int) error {
	if len(e) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrInvalidDetection)
	}
	if dim > 0 && len(e) != dim {
		return fmt.Errorf("%w: embedding has %d dimensions, expected %d", ErrInvalidDetection, len(e), dim)
	}
	nonZero := false
	for i, v := range e {
		if !finite(float64(v)) {
			return fmt.Errorf("%w: embedding component %d is not finite", ErrInvalidDetection, i)
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return fmt.Errorf("%w: zero embedding", ErrInvalidDetection)
	}
	return nil
}

// Validate checks the scalar scores and the embedding of a detection.
func (d Detection) Validate(dim int) error {
	if !finite(d.FaceAreaRatio) || !finite(d.LivenessScore) {
		return fmt.Errorf("%w: non-finite face ratio or liveness score", ErrInvalidDetection)
	}
	return ValidateEmbedding(d.Embedding, dim)
}
