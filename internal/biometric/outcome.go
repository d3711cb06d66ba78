package biometric

import (
	"fmt"

	"github.com/kozaktomas/evoface/internal/config"
)

// Band is the three-way classification of a match.
type Band int

const (
	// BandRejected means no punch and no template update.
	BandRejected Band = iota
	// BandAcceptedFrozen permits a punch but leaves the template untouched.
	BandAcceptedFrozen
	// BandAcceptedEvolving permits a punch and a template update.
	BandAcceptedEvolving
)

func (b Band) String() string {
	switch b {
	case BandRejected:
		return "rejected"
	case BandAcceptedFrozen:
		return "accepted_frozen"
	case BandAcceptedEvolving:
		return "accepted_evolving"
	default:
		return fmt.Sprintf("band(%d)", int(b))
	}
}

// MarshalText encodes the band by name.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a band name produced by MarshalText.
func (b *Band) UnmarshalText(text []byte) error {
	for _, c := range []Band{BandRejected, BandAcceptedFrozen, BandAcceptedEvolving} {
		if c.String() == string(text) {
			*b = c
			return nil
		}
	}
	return fmt.Errorf("unknown band %q", text)
}

// Reason explains a rejection.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonFaceTooSmall     Reason = "face_too_small"
	ReasonSpoofSuspected   Reason = "spoof_suspected"
	ReasonNoCandidateMatch Reason = "no_candidate_match"
)

// Outcome is the result of resolving one detection. EmployeeID is empty unless
// the band is an accepted one.
type Outcome struct {
	EmployeeID     string  `json:"employee_id,omitempty"`
	Slot           int     `json:"slot"`
	Similarity     float64 `json:"similarity"`
	BaseSimilarity float64 `json:"base_similarity"`
	LowBaseWarning bool    `json:"low_base_warning,omitempty"`
	LivenessPassed bool    `json:"liveness_passed"`
	Band           Band    `json:"band"`
	Reason         Reason  `json:"reason,omitempty"`
}

// Accepted reports whether the outcome may produce a punch.
func (o Outcome) Accepted() bool {
	return o.Band == BandAcceptedFrozen || o.Band == BandAcceptedEvolving
}

// EvolutionAllowed reports whether the matched template may be updated.
func (o Outcome) EvolutionAllowed() bool {
	return o.Band == BandAcceptedEvolving
}

// Thresholds configures the resolver. EvolutionMinBase must not be below
// RecognitionConfidence.
type Thresholds struct {
	RecognitionConfidence float64
	EvolutionMinBase      float64
	TextureLiveness       float64
	MinFaceRatio          float64
	WarningBaseScore      float64
}

// ThresholdsFromPolicy converts the policy section into resolver thresholds.
func ThresholdsFromPolicy(c config.ThresholdsConfig) Thresholds {
	return Thresholds{
		RecognitionConfidence: c.RecognitionConfidence,
		EvolutionMinBase:      c.EvolutionMinBase,
		TextureLiveness:       c.TextureLiveness,
		MinFaceRatio:          c.MinFaceRatio,
		WarningBaseScore:      c.WarningBaseScore,
	}
}

// Classify maps a similarity to its band.
func (t Thresholds) Classify(similarity float64) Band {
	switch {
	case similarity < t.RecognitionConfidence:
		return BandRejected
	case similarity < t.EvolutionMinBase:
		return BandAcceptedFrozen
	default:
		return BandAcceptedEvolving
	}
}
