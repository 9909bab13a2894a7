package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
)

// MinValidAge and MaxValidAge bound an accepted age, both exclusive.
const (
	MinValidAge = 0
	MaxValidAge = 150
)

var birthDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"02-01-2006",
	time.RFC3339,
}

var genderSynonyms = map[string]domain.Gender{
	"m":           domain.GenderMale,
	"male":        domain.GenderMale,
	"man":         domain.GenderMale,
	"boy":         domain.GenderMale,
	"f":           domain.GenderFemale,
	"female":      domain.GenderFemale,
	"woman":       domain.GenderFemale,
	"girl":        domain.GenderFemale,
	"nb":          domain.GenderNonBinary,
	"non-binary":  domain.GenderNonBinary,
	"nonbinary":   domain.GenderNonBinary,
	"non binary":  domain.GenderNonBinary,
	"enby":        domain.GenderNonBinary,
	"genderqueer": domain.GenderNonBinary,
	"x":           domain.GenderNonBinary,
}

// UUIDGenerator returns the first eight hex characters of a random UUID.
type UUIDGenerator struct{}

// NewID implements domain.IDGenerator.
func (UUIDGenerator) NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// PatientNormalizer converts heterogeneous raw records into canonical patients.
type PatientNormalizer struct {
	ids     domain.IDGenerator
	clock   domain.Clock
	aliases AliasTable
	logger  *logrus.Logger
}

// NewPatientNormalizer creates a normalizer. Nil collaborators fall back to the
// wall clock and random UUID suffixes.
func NewPatientNormalizer(ids domain.IDGenerator, clock domain.Clock, logger *logrus.Logger) *PatientNormalizer {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PatientNormalizer{
		ids:     ids,
		clock:   clock,
		aliases: DefaultAliases,
		logger:  logger,
	}
}

// WithAliases returns a normalizer that resolves fields through table.
func (n *PatientNormalizer) WithAliases(table AliasTable) *PatientNormalizer {
	clone := *n
	clone.aliases = table
	return &clone
}

// Normalize converts one record into a Patient. It never fails; unresolved
// fields take their documented defaults.
func (n *PatientNormalizer) Normalize(record domain.RawRecord) domain.Patient {
	a := n.aliases
	patient := domain.Patient{
		ID:               firstValue(record, a.ID),
		Name:             n.resolveName(record),
		Age:              n.resolveAge(record),
		Gender:           NormalizeGender(firstValue(record, a.Gender)),
		PrimaryDiagnosis: firstValue(record, a.Diagnosis),
		Conditions:       listValues(record, a.Conditions),
		Medications:      listValues(record, a.Medications),
		Location:         n.resolveLocation(record),
		Insurance:        firstValue(record, a.Insurance),
	}
	if patient.ID == "" {
		patient.ID = n.syntheticID()
	}

	n.logger.WithFields(logrus.Fields(patient.LogFields())).Debug("Normalized patient record")
	return patient
}

// NormalizeBatch normalizes every record and makes ids unique within the batch
// by suffixing repeats with -2, -3 and so on.
func (n *PatientNormalizer) NormalizeBatch(records []domain.RawRecord) []domain.Patient {
	patients := make([]domain.Patient, 0, len(records))
	seen := make(map[string]int, len(records))

	for _, record := range records {
		p := n.Normalize(record)
		base := p.ID
		for seen[p.ID] > 0 {
			seen[base]++
			p.ID = fmt.Sprintf("%s-%d", base, seen[base])
		}
		seen[p.ID]++
		patients = append(patients, p)
	}

	n.logger.WithField("count", len(patients)).Info("Normalized patient batch")
	return patients
}

func (n *PatientNormalizer) syntheticID() string {
	return fmt.Sprintf("PAT-%d-%s", n.clock.Now().UnixMilli(), n.ids.NewID())
}

func (n *PatientNormalizer) resolveName(record domain.RawRecord) string {
	if name := firstValue(record, n.aliases.Name); name != "" {
		return name
	}
	parts := make([]string, 0, 2)
	if first := firstValue(record, n.aliases.FirstName); first != "" {
		parts = append(parts, first)
	}
	if last := firstValue(record, n.aliases.LastName); last != "" {
		parts = append(parts, last)
	}
	if len(parts) == 0 {
		return domain.DefaultPatientName
	}
	return strings.Join(parts, " ")
}

// resolveAge prefers a direct age field, then a birth date.
func (n *PatientNormalizer) resolveAge(record domain.RawRecord) *int {
	for _, key := range n.aliases.Age {
		v, ok := ParseNumber(record.String(key))
		if !ok {
			continue
		}
		age := int(math.Floor(v))
		if age > MinValidAge && age < MaxValidAge {
			return &age
		}
	}

	for _, key := range n.aliases.BirthDate {
		raw := record.String(key)
		if raw == "" {
			continue
		}
		born, ok := parseBirthDate(raw)
		if !ok {
			n.logger.WithFields(logrus.Fields{"field": key, "value": raw}).Debug("Unparseable birth date")
			continue
		}
		if age, ok := AgeAt(born, n.clock.Now()); ok {
			return &age
		}
	}
	return nil
}

func (n *PatientNormalizer) resolveLocation(record domain.RawRecord) string {
	if loc := firstValue(record, n.aliases.Location); loc != "" {
		return loc
	}
	city := firstValue(record, n.aliases.City)
	state := firstValue(record, n.aliases.State)
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	default:
		return state
	}
}

// AgeAt returns the whole years between born and now. The result is rejected
// unless it falls strictly between 0 and 150.
func AgeAt(born, now time.Time) (int, bool) {
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	if age <= MinValidAge || age >= MaxValidAge {
		return 0, false
	}
	return age, true
}

func parseBirthDate(raw string) (time.Time, bool) {
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeGender maps free-text gender to a canonical value.
func NormalizeGender(raw string) domain.Gender {
	return genderSynonyms[strings.ToLower(strings.TrimSpace(raw))]
}

// ParseNumber strips every character except digits, '.' and '-' and parses
// the remainder. Non-finite or unparseable values report false.
func ParseNumber(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func firstValue(record domain.RawRecord, keys []string) string {
	for _, key := range keys {
		if v := record.String(key); v != "" {
			return v
		}
	}
	return ""
}

// listValues concatenates every alias match, splitting strings on , ; | and
// newlines, and removes blanks and case-insensitive duplicates.
func listValues(record domain.RawRecord, keys []string) []string {
	var items []string
	for _, key := range keys {
		switch v := record[key].(type) {
		case nil:
		case string:
			items = append(items, splitList(v)...)
		case []string:
			for _, s := range v {
				items = append(items, splitList(s)...)
			}
		case []any:
			for _, s := range v {
				if s != nil {
					items = append(items, splitList(fmt.Sprint(s))...)
				}
			}
		default:
			items = append(items, splitList(fmt.Sprint(v))...)
		}
	}
	return dedupe(items)
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n' || r == '\r'
	})
}

func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
