package biometric

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/database/mock"
)

var testThresholds = Thresholds{
	RecognitionConfidence: 0.45,
	EvolutionMinBase:      0.60,
	TextureLiveness:       0.95,
	MinFaceRatio:          0.04,
	WarningBaseScore:      0.30,
}

// vecAt returns a unit vector in the plane of the first two axes whose cosine
// with the first axis is cos.
func vecAt(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos)), 0}
}

func template(id string, emb []float32) database.EmployeeTemplate {
	return database.EmployeeTemplate{
		EmployeeID:    id,
		Embedding:     emb,
		Mean:          emb,
		BaseEmbedding: emb,
		SampleCount:   1,
	}
}

func TestThresholds_Classify(t *testing.T) {
	tests := []struct {
		similarity float64
		expected   Band
	}{
		{-1, BandRejected},
		{0.4499, BandRejected},
		{0.45, BandAcceptedFrozen},
		{0.5999, BandAcceptedFrozen},
		{0.60, BandAcceptedEvolving},
		{1, BandAcceptedEvolving},
	}

	for _, tt := range tests {
		got := testThresholds.Classify(tt.similarity)
		if got != tt.expected {
			t.Errorf("Classify(%v) = %v, want %v", tt.similarity, got, tt.expected)
		}
	}
}

func TestOutcome_DerivedFlags(t *testing.T) {
	tests := []struct {
		band      Band
		accepted  bool
		evolution bool
	}{
		{BandRejected, false, false},
		{BandAcceptedFrozen, true, false},
		{BandAcceptedEvolving, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.band.String(), func(t *testing.T) {
			o := Outcome{Band: tt.band}
			if o.Accepted() != tt.accepted || o.EvolutionAllowed() != tt.evolution {
				t.Errorf("band %v: accepted=%v evolution=%v", tt.band, o.Accepted(), o.EvolutionAllowed())
			}
		})
	}
}

func TestBand_TextRoundTrip(t *testing.T) {
	for _, b := range []Band{BandRejected, BandAcceptedFrozen, BandAcceptedEvolving} {
		text, err := b.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got Band
		if err := got.UnmarshalText(text); err != nil || got != b {
			t.Errorf("round trip of %v gave %v, %v", b, got, err)
		}
	}

	var b Band
	if err := b.UnmarshalText([]byte("maybe")); err == nil {
		t.Error("expected error for unknown band")
	}
}

func TestResolver_Resolve(t *testing.T) {
	candidates := map[string][]database.EmployeeTemplate{
		"alice": {template("alice", []float32{1, 0, 0})},
		"bob":   {template("bob", []float32{0, 0, 1})},
	}
	r := NewResolver(testThresholds, WithDimension(3))

	tests := []struct {
		name       string
		det        Detection
		wantBand   Band
		wantReason Reason
		wantID     string
	}{
		{
			name:       "face too small",
			det:        Detection{Embedding: vecAt(1), FaceAreaRatio: 0.01, LivenessScore: 0.99},
			wantBand:   BandRejected,
			wantReason: ReasonFaceTooSmall,
		},
		{
			name:       "spoof",
			det:        Detection{Embedding: vecAt(1), FaceAreaRatio: 0.1, LivenessScore: 0.5},
			wantBand:   BandRejected,
			wantReason: ReasonSpoofSuspected,
		},
		{
			name:       "no match",
			det:        Detection{Embedding: vecAt(0.3), FaceAreaRatio: 0.1, LivenessScore: 0.99},
			wantBand:   BandRejected,
			wantReason: ReasonNoCandidateMatch,
		},
		{
			name:     "frozen",
			det:      Detection{Embedding: vecAt(0.5), FaceAreaRatio: 0.1, LivenessScore: 0.99},
			wantBand: BandAcceptedFrozen,
			wantID:   "alice",
		},
		{
			name:     "evolving",
			det:      Detection{Embedding: vecAt(0.9), FaceAreaRatio: 0.1, LivenessScore: 0.99},
			wantBand: BandAcceptedEvolving,
			wantID:   "alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := r.Resolve(tt.det, candidates)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if o.Band != tt.wantBand {
				t.Errorf("band = %v, want %v", o.Band, tt.wantBand)
			}
			if o.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", o.Reason, tt.wantReason)
			}
			if o.EmployeeID != tt.wantID {
				t.Errorf("employee = %q, want %q", o.EmployeeID, tt.wantID)
			}
		})
	}
}

func TestResolver_NoComparableTemplate(t *testing.T) {
	r := NewResolver(testThresholds)
	det := Detection{Embedding: []float32{1, 0, 0}, FaceAreaRatio: 0.1, LivenessScore: 0.99}

	for name, candidates := range map[string]map[string][]database.EmployeeTemplate{
		"empty":          {},
		"length differs": {"alice": {template("alice", []float32{1, 0})}},
	} {
		o, err := r.Resolve(det, candidates)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if o.Band != BandRejected || o.Reason != ReasonNoCandidateMatch {
			t.Errorf("%s: got %v/%q, want rejected no-match", name, o.Band, o.Reason)
		}
		if o.Similarity != 0 {
			t.Errorf("%s: similarity = %v, want 0", name, o.Similarity)
		}
	}
}

func TestResolver_SpoofCheckedBeforeMatching(t *testing.T) {
	r := NewResolver(testThresholds)
	// An invalid embedding must not matter once liveness already failed.
	o, err := r.Resolve(Detection{FaceAreaRatio: 0.5, LivenessScore: 0.1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Reason != ReasonSpoofSuspected || o.LivenessPassed {
		t.Errorf("expected spoof rejection, got %+v", o)
	}
}

func TestResolver_InvalidDetection(t *testing.T) {
	r := NewResolver(testThresholds, WithDimension(3))
	tests := []struct {
		name string
		det  Detection
	}{
		{"wrong dimension", Detection{Embedding: []float32{1, 0}, FaceAreaRatio: 0.1, LivenessScore: 0.99}},
		{"empty", Detection{FaceAreaRatio: 0.1, LivenessScore: 0.99}},
		{"nan component", Detection{Embedding: []float32{float32(math.NaN()), 0, 0}, FaceAreaRatio: 0.1, LivenessScore: 0.99}},
		{"zero vector", Detection{Embedding: []float32{0, 0, 0}, FaceAreaRatio: 0.1, LivenessScore: 0.99}},
		{"nan ratio", Detection{Embedding: vecAt(1), FaceAreaRatio: math.NaN(), LivenessScore: 0.99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.det, nil)
			if !errors.Is(err, ErrInvalidDetection) {
				t.Errorf("expected ErrInvalidDetection, got %v", err)
			}
		})
	}
}

func TestResolver_MaxOverAllTemplates(t *testing.T) {
	candidates := map[string][]database.EmployeeTemplate{
		"alice": {
			{EmployeeID: "alice", Slot: 0, Embedding: []float32{0, 1, 0}, SampleCount: 1},
			{EmployeeID: "alice", Slot: 1, Embedding: []float32{1, 0, 0}, SampleCount: 1},
		},
		"bob": {template("bob", vecAt(0.8))},
	}
	o, err := NewResolver(testThresholds).Resolve(
		Detection{Embedding: vecAt(1), FaceAreaRatio: 0.1, LivenessScore: 1}, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if o.EmployeeID != "alice" || o.Slot != 1 {
		t.Errorf("expected alice slot 1, got %s slot %d", o.EmployeeID, o.Slot)
	}
	if math.Abs(o.Similarity-1) > 1e-6 {
		t.Errorf("expected similarity 1, got %v", o.Similarity)
	}
}

func TestResolver_TieBreaksByEmployeeID(t *testing.T) {
	candidates := map[string][]database.EmployeeTemplate{
		"zoe":   {template("zoe", []float32{1, 0, 0})},
		"adam":  {template("adam", []float32{1, 0, 0})},
		"marek": {template("marek", []float32{1, 0, 0})},
	}
	r := NewResolver(testThresholds)
	for i := 0; i < 10; i++ {
		o, err := r.Resolve(Detection{Embedding: vecAt(1), FaceAreaRatio: 0.1, LivenessScore: 1}, candidates)
		if err != nil {
			t.Fatal(err)
		}
		if o.EmployeeID != "adam" {
			t.Fatalf("expected adam, got %s", o.EmployeeID)
		}
	}
}

func TestResolver_LowBaseWarning(t *testing.T) {
	evolved := database.EmployeeTemplate{
		EmployeeID:    "alice",
		Embedding:     []float32{1, 0, 0},
		BaseEmbedding: []float32{0, 0, 1},
		SampleCount:   40,
	}
	o, err := NewResolver(testThresholds).Resolve(
		Detection{Embedding: vecAt(0.95), FaceAreaRatio: 0.1, LivenessScore: 1},
		map[string][]database.EmployeeTemplate{"alice": {evolved}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !o.Accepted() || !o.LowBaseWarning {
		t.Errorf("expected accepted outcome with low base warning, got %+v", o)
	}
}

type fakeShortlister struct {
	ids []string
	err error
}

func (f fakeShortlister) Shortlist([]float32, int) ([]string, error) {
	return f.ids, f.err
}

func TestResolver_Shortlist(t *testing.T) {
	candidates := map[string][]database.EmployeeTemplate{
		"alice": {template("alice", []float32{1, 0, 0})},
		"bob":   {template("bob", []float32{0, 1, 0})},
		"carol": {template("carol", []float32{0, 0, 1})},
	}
	det := Detection{Embedding: vecAt(1), FaceAreaRatio: 0.1, LivenessScore: 1}

	// Shortlist restricts scoring to the proposed employees.
	r := NewResolver(testThresholds, WithShortlist(fakeShortlister{ids: []string{"bob"}}, 1))
	o, err := r.Resolve(det, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if o.Accepted() {
		t.Errorf("expected rejection when only bob is shortlisted, got %+v", o)
	}

	// A failing shortlist falls back to exhaustive matching.
	r = NewResolver(testThresholds, WithShortlist(fakeShortlister{err: errors.New("boom")}, 1))
	o, err = r.Resolve(det, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if o.EmployeeID != "alice" {
		t.Errorf("expected exhaustive fallback to alice, got %+v", o)
	}
}

func TestFuse_RunningMean(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	base := template("alice", []float32{1, 0})

	fused := Fuse(base, []float32{0, 2}, now)

	if fused.SampleCount != 2 {
		t.Errorf("expected sample count 2, got %d", fused.SampleCount)
	}
	if fused.Mean[0] != 0.5 || fused.Mean[1] != 0.5 {
		t.Errorf("expected mean [0.5 0.5], got %v", fused.Mean)
	}
	want := float32(1 / math.Sqrt(2))
	if math.Abs(float64(fused.Embedding[0]-want)) > 1e-6 {
		t.Errorf("expected normalized embedding, got %v", fused.Embedding)
	}
	if !fused.LastUpdated.Equal(now) {
		t.Errorf("expected last updated %v, got %v", now, fused.LastUpdated)
	}
	if base.SampleCount != 1 || base.Mean[1] != 0 {
		t.Error("input template must not be modified")
	}
}

func TestFuse_OrderIndependent(t *testing.T) {
	now := time.Now()
	samples := [][]float32{{1, 0.2, 0}, {0.1, 1, 0.3}, {0.5, 0.5, 0.5}, {0, 0.1, 1}}
	start := template("alice", []float32{1, 0, 0})

	forward := start
	for _, s := range samples {
		forward = Fuse(forward, s, now)
	}
	backward := start
	for i := len(samples) - 1; i >= 0; i-- {
		backward = Fuse(backward, samples[i], now)
	}

	for i := range forward.Embedding {
		if math.Abs(float64(forward.Embedding[i]-backward.Embedding[i])) > 1e-5 {
			t.Fatalf("fusion depends on order: %v vs %v", forward.Embedding, backward.Embedding)
		}
	}
}

func newEvolverFixture(t *testing.T) (*Evolver, *Arena, *mock.MockTemplateStore) {
	t.Helper()
	store := mock.NewMockTemplateStore()
	store.AddTemplate(template("alice", []float32{1, 0, 0}))
	arena := NewArena()
	candidates, err := store.GetAllCandidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	arena.Load(candidates)
	return NewEvolver(arena, store, nil), arena, store
}

func TestEvolver_MaybeUpdate(t *testing.T) {
	ctx := context.Background()
	ev, arena, store := newEvolverFixture(t)

	frozen := Outcome{EmployeeID: "alice", Band: BandAcceptedFrozen, Similarity: 0.5}
	updated, err := ev.MaybeUpdate(ctx, "alice", vecAt(0.5), frozen)
	if err != nil || updated {
		t.Fatalf("frozen outcome must not update: updated=%v err=%v", updated, err)
	}

	evolving := Outcome{EmployeeID: "alice", Band: BandAcceptedEvolving, Similarity: 0.9}
	updated, err = ev.MaybeUpdate(ctx, "alice", vecAt(0.9), evolving)
	if err != nil || !updated {
		t.Fatalf("expected update: updated=%v err=%v", updated, err)
	}

	tmpl, _ := arena.Template("alice", 0)
	if tmpl.SampleCount != 2 {
		t.Errorf("expected arena sample count 2, got %d", tmpl.SampleCount)
	}
	stored, _ := store.GetTemplates(ctx, "alice")
	if stored[0].SampleCount != 2 || store.Commits() != 1 {
		t.Errorf("expected committed template, got %+v (commits=%d)", stored[0], store.Commits())
	}

	// Outcome for a different employee is ignored.
	updated, err = ev.MaybeUpdate(ctx, "bob", vecAt(0.9), evolving)
	if err != nil || updated {
		t.Errorf("mismatched employee must be a no-op: updated=%v err=%v", updated, err)
	}
}

func TestEvolver_CommitFailureLeavesArena(t *testing.T) {
	ctx := context.Background()
	ev, arena, store := newEvolverFixture(t)
	store.CommitError = errors.New("disk full")

	_, err := ev.MaybeUpdate(ctx, "alice", vecAt(0.9), Outcome{EmployeeID: "alice", Band: BandAcceptedEvolving})
	if !errors.Is(err, ErrTemplateCommit) {
		t.Fatalf("expected ErrTemplateCommit, got %v", err)
	}

	tmpl, _ := arena.Template("alice", 0)
	if tmpl.SampleCount != 1 {
		t.Errorf("arena must be unchanged after failed commit, got sample count %d", tmpl.SampleCount)
	}
}

func TestEvolver_ConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	ev, arena, _ := newEvolverFixture(t)
	outcome := Outcome{EmployeeID: "alice", Band: BandAcceptedEvolving}

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ev.MaybeUpdate(ctx, "alice", vecAt(0.9), outcome); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	tmpl, _ := arena.Template("alice", 0)
	if tmpl.SampleCount != workers+1 {
		t.Errorf("expected sample count %d, got %d", workers+1, tmpl.SampleCount)
	}
}

func TestArena_SnapshotIsolation(t *testing.T) {
	arena := NewArena()
	arena.Set("alice", []database.EmployeeTemplate{template("alice", []float32{1, 0})})

	snap := arena.Snapshot()
	updated := Fuse(snap["alice"][0], []float32{0, 1}, time.Now())
	arena.Replace(updated)

	if snap["alice"][0].SampleCount != 1 {
		t.Error("snapshot must not observe later replacements")
	}
	if arena.Len() != 1 {
		t.Errorf("expected 1 employee, got %d", arena.Len())
	}
	arena.Remove("alice")
	if arena.Len() != 0 {
		t.Error("expected arena to be empty after removal")
	}
}
