package service

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
)

// Lab and test fields are discovered by these case-sensitive prefixes.
const (
	TestResultPrefix = "test_result_"
	LabPrefix        = "lab_"
)

var (
	stageInTextPattern = regexp.MustCompile(`(?i)\bstage\s*(iv|iii|ii|i|[1-4])(?:[a-c][0-9]?)?\b`)
	bareStagePattern   = regexp.MustCompile(`(?i)^(iv|iii|ii|i|[1-4])(?:[a-c][0-9]?)?$`)
	romanClassPattern  = regexp.MustCompile(`(?i)\b(iv|iii|ii|i)\b`)

	severityLevels = []struct {
		keyword string
		value   float64
	}{
		{keyword: "severe", value: 0.9},
		{keyword: "moderate", value: 0.6},
		{keyword: "mild", value: 0.3},
	}

	romanNumerals = map[string]string{
		"i": "I", "ii": "II", "iii": "III", "iv": "IV",
		"1": "I", "2": "II", "3": "III", "4": "IV",
	}

	romanValues = map[string]float64{"i": 1, "ii": 2, "iii": 3, "iv": 4}
)

// MetricsExtractor projects a raw record onto PatientMetrics.
type MetricsExtractor struct {
	aliases AliasTable
	logger  *logrus.Logger
}

// NewMetricsExtractor creates an extractor using DefaultAliases.
func NewMetricsExtractor(logger *logrus.Logger) *MetricsExtractor {
	if logger == nil {
		logger = logrus.New()
	}
	return &MetricsExtractor{aliases: DefaultAliases, logger: logger}
}

// Extract pulls structured clinical signals from record. It never fails;
// anything that does not parse is left absent.
func (e *MetricsExtractor) Extract(record domain.RawRecord) domain.PatientMetrics {
	a := e.aliases
	m := domain.PatientMetrics{
		Severity:     parseSeverity(firstValue(record, a.Severity)),
		DiseaseStage: e.resolveStage(record),
		ECOG:         numberField(record, a.ECOG),
		NYHA:         parseNYHA(firstValue(record, a.NYHA)),
		HbA1c:        numberField(record, a.HbA1c),
		EGFR:         numberField(record, a.EGFR),
		BMI:          numberField(record, a.BMI),
		Smoking:      strings.ToLower(firstValue(record, a.Smoking)),
		Adherence:    parseAdherence(firstValue(record, a.Adherence)),
		Tests:        discoverTests(record),
	}

	e.logger.WithFields(logrus.Fields{
		"stage":      m.DiseaseStage,
		"test_count": len(m.Tests),
		"empty":      m.IsEmpty(),
	}).Debug("Extracted patient metrics")
	return m
}

func (e *MetricsExtractor) resolveStage(record domain.RawRecord) string {
	if raw := firstValue(record, e.aliases.Stage); raw != "" {
		if roman, ok := matchStage(raw); ok {
			return "Stage " + roman
		}
		return raw
	}
	if diagnosis := firstValue(record, e.aliases.Diagnosis); diagnosis != "" {
		if m := stageInTextPattern.FindStringSubmatch(diagnosis); m != nil {
			return "Stage " + romanNumerals[strings.ToLower(m[1])]
		}
	}
	return ""
}

func matchStage(raw string) (string, bool) {
	if m := stageInTextPattern.FindStringSubmatch(raw); m != nil {
		return romanNumerals[strings.ToLower(m[1])], true
	}
	if m := bareStagePattern.FindStringSubmatch(strings.TrimSpace(raw)); m != nil {
		return romanNumerals[strings.ToLower(m[1])], true
	}
	return "", false
}

// parseSeverity maps mild/moderate/severe to 0.3/0.6/0.9. Numbers above 1
// and up to 100 are read as percentages. The result is clamped to [0,1].
func parseSeverity(raw string) *float64 {
	if raw == "" {
		return nil
	}
	lower := strings.ToLower(raw)
	for _, level := range severityLevels {
		if strings.Contains(lower, level.keyword) {
			v := level.value
			return &v
		}
	}
	v, ok := ParseNumber(raw)
	if !ok {
		return nil
	}
	if v > 1 && v <= 100 {
		v /= 100
	}
	v = clamp(v, 0, 1)
	return &v
}

// parseAdherence accepts a fraction or a percentage and clamps to [0,1].
func parseAdherence(raw string) *float64 {
	v, ok := ParseNumber(raw)
	if !ok {
		return nil
	}
	if v > 1 {
		v /= 100
	}
	v = clamp(v, 0, 1)
	return &v
}

func parseNYHA(raw string) *float64 {
	if raw == "" {
		return nil
	}
	if v, ok := ParseNumber(raw); ok {
		return &v
	}
	if m := romanClassPattern.FindStringSubmatch(raw); m != nil {
		v := romanValues[strings.ToLower(m[1])]
		return &v
	}
	return nil
}

func numberField(record domain.RawRecord, keys []string) *float64 {
	for _, key := range keys {
		if v, ok := ParseNumber(record.String(key)); ok {
			return &v
		}
	}
	return nil
}

func discoverTests(record domain.RawRecord) map[string]float64 {
	var tests map[string]float64
	for key := range record {
		if !strings.HasPrefix(key, TestResultPrefix) && !strings.HasPrefix(key, LabPrefix) {
			continue
		}
		v, ok := ParseNumber(record.String(key))
		if !ok {
			continue
		}
		if tests == nil {
			tests = make(map[string]float64)
		}
		tests[key] = v
	}
	return tests
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
