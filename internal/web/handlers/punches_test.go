package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/evoface/internal/biometric"
	"go.uber.org/zap"
)

func TestPunches_RecentAndUnmatched(t *testing.T) {
	p, _ := newTestPipeline(t)
	h := NewPunchesHandler(p, zap.NewNop())
	ctx := context.Background()

	if _, err := p.Process(ctx, biometric.Detection{Embedding: aliceFace, FaceAreaRatio: 0.2, LivenessScore: 0.99}, fixedNow); err != nil {
		t.Fatal(err)
	}
	noon := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	if _, err := p.Process(ctx, biometric.Detection{Embedding: bobFace, FaceAreaRatio: 0.2, LivenessScore: 0.99}, noon); err != nil {
		t.Fatal(err)
	}

	recorder := httptest.NewRecorder()
	h.Recent(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/punches/recent?limit=1", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var recent []PunchResponse
	parseJSONResponse(t, recorder, &recent)
	if len(recent) != 1 || recent[0].EmployeeID != "bob" {
		t.Errorf("expected newest punch (bob), got %+v", recent)
	}

	recorder = httptest.NewRecorder()
	h.Unmatched(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/punches/unmatched", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var unmatched []PunchResponse
	parseJSONResponse(t, recorder, &unmatched)
	if len(unmatched) != 1 || !unmatched[0].Unmatched {
		t.Fatalf("expected one unmatched punch, got %+v", unmatched)
	}

	resolve := func(id, code string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := requestWithChiParams(
			jsonRequest(t, http.MethodPost, "/api/v1/punches/"+id+"/resolve", ResolvePunchRequest{ShiftCode: code}),
			map[string]string{"id": id})
		h.Resolve(rec, req)
		return rec
	}

	assertStatusCode(t, resolve(unmatched[0].ID, "night"), http.StatusBadRequest)
	assertStatusCode(t, resolve("missing", "morning"), http.StatusNotFound)

	recorder = resolve(unmatched[0].ID, "morning")
	assertStatusCode(t, recorder, http.StatusOK)
	var rec DailyRecordResponse
	parseJSONResponse(t, recorder, &rec)
	if rec.EmployeeID != "bob" || rec.ShiftCode != "morning" || rec.LateMinutes != 240 {
		t.Errorf("unexpected record %+v", rec)
	}

	assertStatusCode(t, resolve(unmatched[0].ID, "evening"), http.StatusConflict)
}

func TestPunches_RecentLimitValidation(t *testing.T) {
	p, _ := newTestPipeline(t)
	h := NewPunchesHandler(p, zap.NewNop())

	for _, q := range []string{"?limit=0", "?limit=-5", "?limit=ten"} {
		recorder := httptest.NewRecorder()
		h.Recent(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/punches/recent"+q, nil))
		assertStatusCode(t, recorder, http.StatusBadRequest)
	}
}
