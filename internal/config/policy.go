package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// PolicyConfig is the attendance policy: recognition thresholds, punch rules and shifts.
type PolicyConfig struct {
	Thresholds ThresholdsConfig `yaml:"thresholds" json:"thresholds"`
	Attendance AttendanceConfig `yaml:"attendance" json:"attendance"`
	Shifts     []ShiftConfig    `yaml:"shifts" json:"shifts"`
}

type ThresholdsConfig struct {
	RecognitionConfidence float64 `yaml:"recognition_confidence" json:"recognition_confidence"`
	EvolutionMinBase      float64 `yaml:"evolution_min_base" json:"evolution_min_base"`
	TextureLiveness       float64 `yaml:"texture_liveness" json:"texture_liveness"`
	MinFaceRatio          float64 `yaml:"min_face_ratio" json:"min_face_ratio"`
	WarningBaseScore      float64 `yaml:"warning_base_score" json:"warning_base_score"`
}

type AttendanceConfig struct {
	Timezone                       string `yaml:"timezone" json:"timezone"`
	DebounceMinutes                int    `yaml:"debounce_minutes" json:"debounce_minutes"`
	DayCutoff                      string `yaml:"day_cutoff" json:"day_cutoff"`
	LateBufferMinutes              int    `yaml:"late_buffer_minutes" json:"late_buffer_minutes"`
	BreakDeductionThresholdMinutes int    `yaml:"break_deduction_threshold_minutes" json:"break_deduction_threshold_minutes"`
	BreakDeductionMinutes          int    `yaml:"break_deduction_minutes" json:"break_deduction_minutes"`
}

// ShiftConfig holds times of day as "HH:MM". EndTime earlier than StartTime
// denotes a shift crossing midnight; the same holds for the range.
type ShiftConfig struct {
	Code               string `yaml:"code" json:"code"`
	Name               string `yaml:"name" json:"name"`
	StartTime          string `yaml:"start_time" json:"start_time"`
	EndTime            string `yaml:"end_time" json:"end_time"`
	RangeStart         string `yaml:"range_start" json:"range_start"`
	RangeEnd           string `yaml:"range_end" json:"range_end"`
	NominalPaidMinutes int    `yaml:"nominal_paid_minutes" json:"nominal_paid_minutes"`
}

// ParsePolicy decodes a YAML policy document and validates it.
func ParsePolicy(data []byte) (*PolicyConfig, error) {
	var p PolicyConfig
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	if p.Attendance.Timezone == "" {
		p.Attendance.Timezone = "Local"
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPolicy reads the policy from path, or the embedded default when path is empty.
func LoadPolicy(path string) (*PolicyConfig, error) {
	if path == "" {
		return ParsePolicy(defaultPolicyYAML)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return ParsePolicy(data)
}

// DefaultPolicy returns the embedded default policy.
func DefaultPolicy() *PolicyConfig {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to parse embedded policy.yaml: " + err.Error())
	}
	return p
}

// Location resolves the configured timezone.
func (p *PolicyConfig) Location() (*time.Location, error) {
	if p.Attendance.Timezone == "" || p.Attendance.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(p.Attendance.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", p.Attendance.Timezone, err)
	}
	return loc, nil
}

func validTimeOfDay(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

// Validate rejects policies the engines cannot apply consistently.
func (p *PolicyConfig) Validate() error {
	t := p.Thresholds
	if t.RecognitionConfidence <= 0 || t.RecognitionConfidence > 1 {
		return fmt.Errorf("thresholds.recognition_confidence must be in (0,1], got %v", t.RecognitionConfidence)
	}
	if t.EvolutionMinBase < t.RecognitionConfidence || t.EvolutionMinBase > 1 {
		return fmt.Errorf("thresholds.evolution_min_base must be in [recognition_confidence,1], got %v", t.EvolutionMinBase)
	}
	if t.TextureLiveness < 0 || t.TextureLiveness > 1 {
		return fmt.Errorf("thresholds.texture_liveness must be in [0,1], got %v", t.TextureLiveness)
	}
	if t.MinFaceRatio < 0 || t.MinFaceRatio > 1 {
		return fmt.Errorf("thresholds.min_face_ratio must be in [0,1], got %v", t.MinFaceRatio)
	}

	a := p.Attendance
	if a.DebounceMinutes < 0 || a.LateBufferMinutes < 0 ||
		a.BreakDeductionThresholdMinutes < 0 || a.BreakDeductionMinutes < 0 {
		return errors.New("attendance minute settings must not be negative")
	}
	if !validTimeOfDay(a.DayCutoff) {
		return fmt.Errorf("attendance.day_cutoff %q is not HH:MM", a.DayCutoff)
	}
	if _, err := p.Location(); err != nil {
		return err
	}

	if len(p.Shifts) == 0 {
		return errors.New("at least one shift must be configured")
	}
	seen := make(map[string]bool, len(p.Shifts))
	for _, s := range p.Shifts {
		if s.Code == "" {
			return errors.New("shift code must not be empty")
		}
		if seen[s.Code] {
			return fmt.Errorf("duplicate shift code %q", s.Code)
		}
		seen[s.Code] = true
		for field, v := range map[string]string{
			"start_time": s.StartTime, "end_time": s.EndTime,
			"range_start": s.RangeStart, "range_end": s.RangeEnd,
		} {
			if !validTimeOfDay(v) {
				return fmt.Errorf("shift %q: %s %q is not HH:MM", s.Code, field, v)
			}
		}
		if s.NominalPaidMinutes <= 0 {
			return fmt.Errorf("shift %q: nominal_paid_minutes must be positive", s.Code)
		}
	}
	return nil
}
