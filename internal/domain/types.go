// Package domain contains the core entities of the clinical trial matching pipeline:
// the canonical Patient, the auxiliary PatientMetrics, registry Trials and the
// heuristic FitResult derived from them.
//
// None of these entities are persisted. A Patient is created once per raw input
// record and only its location may be attached afterwards.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Gender is the normalized patient gender.
type Gender string

const (
	GenderMale      Gender = "Male"
	GenderFemale    Gender = "Female"
	GenderNonBinary Gender = "Non-binary"
	GenderUnknown   Gender = ""
)

// IsValid reports whether g is one of the normalized gender values.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderNonBinary, GenderUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of Gender
func (g Gender) String() string {
	return string(g)
}

// Band is the coarse tier summarizing a fit score.
type Band string

const (
	BandLow      Band = "Low"
	BandModerate Band = "Moderate"
	BandHigh     Band = "High"
)

// Band thresholds on the 0-100 fit score.
const (
	HighBandThreshold     = 70
	ModerateBandThreshold = 45
)

// BandForScore maps a fit score to its band.
func BandForScore(score int) Band {
	switch {
	case score >= HighBandThreshold:
		return BandHigh
	case score >= ModerateBandThreshold:
		return BandModerate
	default:
		return BandLow
	}
}

// IsValid reports whether b is a known band.
func (b Band) IsValid() bool {
	switch b {
	case BandLow, BandModerate, BandHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of Band
func (b Band) String() string {
	return string(b)
}

// DefaultPatientName is used when no name field can be resolved.
const DefaultPatientName = "Unknown Patient"

// RegistryDataSource tags trials retrieved from the public registry.
const RegistryDataSource = "ClinicalTrials.gov"

// Validation errors for derived entities
var (
	ErrInvalidGender = errors.New("invalid gender")
	ErrInvalidBand   = errors.New("invalid fit band")
	ErrMissingID     = errors.New("patient id is required")
)

// RawRecord is one heterogeneous input record. Values are usually strings but
// numbers and string lists are accepted as well.
type RawRecord map[string]any

// RecordFromRow converts a parsed tabular row into a RawRecord.
func RecordFromRow(row map[string]string) RawRecord {
	record := make(RawRecord, len(row))
	for k, v := range row {
		record[k] = v
	}
	return record
}

// String returns the trimmed string form of the value stored under key, or ""
// when the key is absent or holds a list.
func (r RawRecord) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string, []any:
		return ""
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", val))
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// Patient is the canonical clinical identity of one input record.
type Patient struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Age              *int     `json:"age,omitempty"`
	Gender           Gender   `json:"gender"`
	PrimaryDiagnosis string   `json:"primaryDiagnosis"`
	Conditions       []string `json:"conditions"`
	Medications      []string `json:"medications"`
	Location         string   `json:"location,omitempty"`
	Insurance        string   `json:"insurance,omitempty"`
}

// Validate checks the structural invariants of a normalized patient.
func (p *Patient) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingID
	}
	if !p.Gender.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidGender, p.Gender)
	}
	if p.Age != nil && (*p.Age <= 0 || *p.Age >= 150) {
		return NewValidationError("age", "age must be between 0 and 150", *p.Age)
	}
	return nil
}

// HasAge reports whether the patient's age is known.
func (p *Patient) HasAge() bool {
	return p.Age != nil
}

// IsMinor reports whether the patient is known to be under 18.
func (p *Patient) IsMinor() bool {
	return p.Age != nil && *p.Age < 18
}

// HasClinicalTopic reports whether the patient carries a diagnosis or any condition.
func (p *Patient) HasClinicalTopic() bool {
	return strings.TrimSpace(p.PrimaryDiagnosis) != "" || len(p.Conditions) > 0
}

// WithLocation returns a copy of the patient with an enriched location. An
// empty enrichment never replaces an existing value.
func (p Patient) WithLocation(location string) Patient {
	location = strings.TrimSpace(location)
	if location == "" {
		return p
	}
	p.Location = location
	return p
}

// LogFields returns a structured representation for logging
func (p *Patient) LogFields() map[string]interface{} {
	fields := map[string]interface{}{
		"patient_id":      p.ID,
		"has_diagnosis":   p.PrimaryDiagnosis != "",
		"condition_count": len(p.Conditions),
	}
	if p.Age != nil {
		fields["age"] = *p.Age
	}
	return fields
}

// PatientMetrics holds structured clinical signals pulled from a raw record.
// Every numeric field is either a finite number or nil.
type PatientMetrics struct {
	PatientID    string             `json:"patientId,omitempty"`
	Severity     *float64           `json:"severity,omitempty"`
	DiseaseStage string             `json:"diseaseStage,omitempty"`
	ECOG         *float64           `json:"ecog,omitempty"`
	NYHA         *float64           `json:"nyha,omitempty"`
	HbA1c        *float64           `json:"hba1c,omitempty"`
	EGFR         *float64           `json:"egfr,omitempty"`
	BMI          *float64           `json:"bmi,omitempty"`
	Smoking      string             `json:"smoking,omitempty"`
	Adherence    *float64           `json:"adherence,omitempty"`
	Tests        map[string]float64 `json:"tests,omitempty"`
}

// IsEmpty reports whether no signal was extracted.
func (m *PatientMetrics) IsEmpty() bool {
	return m.Severity == nil && m.DiseaseStage == "" && m.ECOG == nil && m.NYHA == nil &&
		m.HbA1c == nil && m.EGFR == nil && m.BMI == nil && m.Smoking == "" &&
		m.Adherence == nil && len(m.Tests) == 0
}

// Trial is a candidate clinical trial pulled from the external registry.
type Trial struct {
	NCTID          string   `json:"nctId"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	Phase          string   `json:"phase"`
	Sponsor        string   `json:"sponsor"`
	Condition      string   `json:"condition"`
	Locations      []string `json:"locations"`
	Contact        string   `json:"contact"`
	Eligibility    string   `json:"eligibility"`
	LastUpdated    string   `json:"lastUpdated"`
	SearchTermUsed string   `json:"searchTermUsed"`
	MatchScore     int      `json:"matchScore"`
	DataSource     string   `json:"dataSource"`
}

// FitResult is the output of the eligibility heuristic scorer.
type FitResult struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
	Band    Band     `json:"band"`
}

// PatientProfile bundles the projections derived from one raw record.
type PatientProfile struct {
	Patient Patient        `json:"patient"`
	Metrics PatientMetrics `json:"metrics"`
	Fit     FitResult      `json:"fit"`
}

// MatchResult is the outcome of a trial search for one patient.
type MatchResult struct {
	PatientID   string    `json:"patientId"`
	Fit         FitResult `json:"fit"`
	Trials      []Trial   `json:"trials"`
	SearchTerms []string  `json:"searchTerms"`
	TotalFound  int       `json:"totalFound"`
}

// NarrativeRequest is one call to the narrative generator.
type NarrativeRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}
