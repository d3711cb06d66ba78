package handlers

import (
	"time"

	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/biometric"
	"github.com/kozaktomas/evoface/internal/database"
)

// EmployeeResponse represents a registered employee
type EmployeeResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DefaultShift string    `json:"default_shift,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PunchResponse represents a stored raw punch
type PunchResponse struct {
	ID               string    `json:"id"`
	EmployeeID       string    `json:"employee_id"`
	Timestamp        time.Time `json:"timestamp"`
	SourceConfidence float64   `json:"source_confidence"`
	BusinessDate     string    `json:"business_date"`
	ShiftCode        string    `json:"shift_code,omitempty"`
	Unmatched        bool      `json:"unmatched"`
}

// DailyRecordResponse represents aggregated attendance of one business date
type DailyRecordResponse struct {
	EmployeeID      string     `json:"employee_id"`
	BusinessDate    string     `json:"business_date"`
	ShiftCode       string     `json:"shift_code"`
	ShiftName       string     `json:"shift_name,omitempty"`
	ClockIn         time.Time  `json:"clock_in"`
	ClockOut        *time.Time `json:"clock_out,omitempty"`
	PunchCount      int        `json:"punch_count"`
	LateMinutes     int        `json:"late_minutes"`
	GrossMinutes    int        `json:"gross_minutes"`
	BreakMinutes    int        `json:"break_minutes"`
	NetMinutes      int        `json:"net_minutes"`
	OvertimeMinutes int        `json:"overtime_minutes"`
	Status          string     `json:"status"`
	Flags           []string   `json:"flags"`
}

// DetectionResponse reports the processing of one detection
type DetectionResponse struct {
	Outcome        biometric.Outcome    `json:"outcome"`
	Evolved        bool                 `json:"evolved"`
	EvolutionError string               `json:"evolution_error,omitempty"`
	Suppressed     bool                 `json:"suppressed"`
	Unmatched      bool                 `json:"unmatched"`
	Punch          *PunchResponse       `json:"punch,omitempty"`
	Record         *DailyRecordResponse `json:"record,omitempty"`
	RecordError    string               `json:"record_error,omitempty"`
}

func employeeResponse(e database.Employee) EmployeeResponse {
	return EmployeeResponse{ID: e.ID, Name: e.Name, DefaultShift: e.DefaultShift, CreatedAt: e.CreatedAt}
}

func punchResponse(p database.PunchRecord) PunchResponse {
	return PunchResponse{
		ID:               p.ID,
		EmployeeID:       p.EmployeeID,
		Timestamp:        p.Timestamp,
		SourceConfidence: p.SourceConfidence,
		BusinessDate:     p.BusinessDate.Format(time.DateOnly),
		ShiftCode:        p.ShiftCode,
		Unmatched:        p.Unmatched(),
	}
}

func punchResponses(punches []database.PunchRecord) []PunchResponse {
	out := make([]PunchResponse, 0, len(punches))
	for _, p := range punches {
		out = append(out, punchResponse(p))
	}
	return out
}

func recordResponse(r database.DailyRecord) DailyRecordResponse {
	flags := r.Flags
	if flags == nil {
		flags = []string{}
	}
	return DailyRecordResponse{
		EmployeeID:      r.EmployeeID,
		BusinessDate:    r.BusinessDate.Format(time.DateOnly),
		ShiftCode:       r.ShiftCode,
		ShiftName:       r.ShiftName,
		ClockIn:         r.ClockIn,
		ClockOut:        r.ClockOut,
		PunchCount:      r.PunchCount,
		LateMinutes:     r.LateMinutes,
		GrossMinutes:    r.GrossMinutes,
		BreakMinutes:    r.BreakMinutes,
		NetMinutes:      r.NetMinutes,
		OvertimeMinutes: r.OvertimeMinutes,
		Status:          string(r.Status),
		Flags:           flags,
	}
}

func detectionResponse(res attendance.Result) DetectionResponse {
	out := DetectionResponse{
		Outcome:        res.Outcome,
		Evolved:        res.Evolved,
		EvolutionError: res.EvolutionError,
		Suppressed:     res.Suppressed,
		Unmatched:      res.Unmatched,
		RecordError:    res.RecordError,
	}
	if res.Punch != nil {
		p := punchResponse(*res.Punch)
		out.Punch = &p
	}
	if res.Record != nil {
		r := recordResponse(*res.Record)
		out.Record = &r
	}
	return out
}
