package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/constants"
	"github.com/kozaktomas/evoface/internal/database"
	"go.uber.org/zap"
)

// EmployeesHandler handles employee registration and attendance reports
type EmployeesHandler struct {
	pipeline *attendance.Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

// NewEmployeesHandler creates a new employees handler
func NewEmployeesHandler(p *attendance.Pipeline, logger *zap.Logger) *EmployeesHandler {
	return &EmployeesHandler{pipeline: p, logger: logger, now: time.Now}
}

// RegisterEmployeeRequest registers an employee with the first face sample
type RegisterEmployeeRequest struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DefaultShift string    `json:"default_shift,omitempty"`
	Embedding    []float32 `json:"embedding"`
}

// List returns all employees, or those whose name matches ?q=
func (h *EmployeesHandler) List(w http.ResponseWriter, r *http.Request) {
	store := h.pipeline.Stores().Employees

	var (
		employees []database.Employee
		err       error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		employees, err = store.SearchEmployees(r.Context(), q)
	} else {
		employees, err = store.ListEmployees(r.Context())
	}
	if err != nil {
		h.logger.Error("listing employees failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list employees")
		return
	}

	out := make([]EmployeeResponse, 0, len(employees))
	for _, e := range employees {
		out = append(out, employeeResponse(e))
	}
	respondJSON(w, http.StatusOK, out)
}

// Create registers an employee
func (h *EmployeesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RegisterEmployeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "id and name are required")
		return
	}

	e := database.Employee{ID: req.ID, Name: req.Name, DefaultShift: req.DefaultShift, CreatedAt: h.now()}
	if err := h.pipeline.RegisterEmployee(r.Context(), e, req.Embedding); err != nil {
		h.logger.Warn("registering employee failed", zap.String("employee_id", sanitizeForLog(req.ID)), zap.Error(err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, employeeResponse(e))
}

// Delete removes an employee with templates and punches
func (h *EmployeesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.pipeline.RemoveEmployee(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attendance returns daily records for ?from=&to= (YYYY-MM-DD, inclusive).
// Without a range the last DefaultAttendanceDays business dates are returned.
func (h *EmployeesHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	today := h.pipeline.Shifts().BusinessDate(h.now())
	to, err := parseDate(r.URL.Query().Get("to"), today)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseDate(r.URL.Query().Get("from"), to.AddDate(0, 0, -(constants.DefaultAttendanceDays-1)))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	records, err := h.pipeline.Report(r.Context(), id, from, to)
	if err != nil {
		if !errors.Is(err, attendance.ErrUnknownEmployee) {
			h.logger.Error("loading attendance failed", zap.String("employee_id", sanitizeForLog(id)), zap.Error(err))
		}
		respondDomainError(w, err)
		return
	}

	out := make([]DailyRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse(rec))
	}
	respondJSON(w, http.StatusOK, out)
}
