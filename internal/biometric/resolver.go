package biometric

import (
	"sort"

	"github.com/kozaktomas/evoface/internal/database"
	"go.uber.org/zap"
)

// Shortlister proposes the employees most likely to match a query embedding.
// database.TemplateIndex and the PostgreSQL template repository implement it.
type Shortlister interface {
	Shortlist(query []float32, k int) ([]string, error)
}

// Resolver maps a detection to an employee. It holds no mutable state and is
// safe for concurrent use.
type Resolver struct {
	thresholds Thresholds
	dim        int
	shortlist  Shortlister
	shortlistK int
	logger     *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDimension requires embeddings of exactly dim components.
func WithDimension(dim int) ResolverOption {
	return func(r *Resolver) { r.dim = dim }
}

// WithShortlist narrows matching to the k employees proposed by s when there
// are more than k candidates. Similarities are still computed exactly.
func WithShortlist(s Shortlister, k int) ResolverOption {
	return func(r *Resolver) {
		r.shortlist = s
		r.shortlistK = k
	}
}

// WithLogger sets the logger used for shortlist fallbacks.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a resolver with the given thresholds.
func NewResolver(t Thresholds, opts ...ResolverOption) *Resolver {
	r := &Resolver{thresholds: t, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Thresholds returns the configured thresholds.
func (r *Resolver) Thresholds() Thresholds {
	return r.thresholds
}

// Resolve classifies a detection against the candidate templates. Rejections
// are reported in the outcome; an error is returned only for unusable input.
func (r *Resolver) Resolve(det Detection, candidates map[string][]database.EmployeeTemplate) (Outcome, error) {
	if !finite(det.FaceAreaRatio) || !finite(det.LivenessScore) {
		return Outcome{}, det.Validate(r.dim)
	}
	if det.FaceAreaRatio < r.thresholds.MinFaceRatio {
		return Outcome{Band: BandRejected, Reason: ReasonFaceTooSmall}, nil
	}
	if det.LivenessScore < r.thresholds.TextureLiveness {
		return Outcome{Band: BandRejected, Reason: ReasonSpoofSuspected}, nil
	}
	if err := ValidateEmbedding(det.Embedding, r.dim); err != nil {
		return Outcome{}, err
	}

	ids := r.candidateIDs(det.Embedding, candidates)

	best := Outcome{Similarity: -1, LivenessPassed: true}
	var bestTemplate *database.EmployeeTemplate
	for _, id := range ids {
		list := candidates[id]
		for i := range list {
			t := &list[i]
			if len(t.Embedding) != len(det.Embedding) {
				continue
			}
			s := database.CosineSimilarity(det.Embedding, t.Embedding)
			if s > best.Similarity {
				best.Similarity = s
				best.EmployeeID = id
				best.Slot = t.Slot
				bestTemplate = t
			}
		}
	}

	if bestTemplate != nil {
		best.Band = r.thresholds.Classify(best.Similarity)
	}
	if bestTemplate == nil {
		best.Similarity = 0
	}
	if bestTemplate == nil || best.Band == BandRejected {
		best.Band = BandRejected
		best.EmployeeID = ""
		best.Slot = 0
		best.Reason = ReasonNoCandidateMatch
		return best, nil
	}

	if len(bestTemplate.BaseEmbedding) == len(det.Embedding) {
		best.BaseSimilarity = database.CosineSimilarity(det.Embedding, bestTemplate.BaseEmbedding)
		best.LowBaseWarning = r.thresholds.WarningBaseScore > 0 && best.BaseSimilarity < r.thresholds.WarningBaseScore
	}
	return best, nil
}

// candidateIDs returns the employees to score, in ascending ID order so that
// equal similarities resolve deterministically.
func (r *Resolver) candidateIDs(query []float32, candidates map[string][]database.EmployeeTemplate) []string {
	var ids []string
	if r.shortlist != nil && r.shortlistK > 0 && len(candidates) > r.shortlistK {
		short, err := r.shortlist.Shortlist(query, r.shortlistK)
		if err != nil {
			r.logger.Warn("shortlist failed, matching exhaustively", zap.Error(err))
		}
		for _, id := range short {
			if _, ok := candidates[id]; ok {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		ids = make([]string, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
