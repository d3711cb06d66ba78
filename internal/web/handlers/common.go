package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/biometric"
	"github.com/kozaktomas/evoface/internal/constants"
	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/shift"
	"github.com/kozaktomas/evoface/internal/workhours"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, biometric.ErrInvalidDetection), errors.Is(err, shift.ErrShiftUnresolved):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound), errors.Is(err, attendance.ErrUnknownEmployee):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrPunchAlreadyMatched), errors.Is(err, workhours.ErrRecordFinalized):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError sends err with the status its kind maps to.
func respondDomainError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// decodeJSON reads a size-limited JSON body into target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

// parseDate parses a YYYY-MM-DD query value; empty yields def.
func parseDate(value string, def time.Time) (time.Time, error) {
	if value == "" {
		return def, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
