package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinical-trial-matcher/internal/domain"
)

func TestScoreScenarioA(t *testing.T) {
	record := domain.RawRecord{
		"name":               "Jane Doe",
		"age":                "62",
		"gender":             "F",
		"primary_diagnosis":  "Stage II Breast Cancer",
		"condition_severity": "moderate",
		"ecog":               "1",
	}
	patient := newTestNormalizer().Normalize(record)
	metrics := NewMetricsExtractor(quietLogger()).Extract(record)

	result := NewFitScorer(quietLogger()).Score(patient, &metrics)

	assert.Equal(t, 75, result.Score)
	assert.Equal(t, domain.BandHigh, result.Band)
	assert.Equal(t, []string{
		"Adult age 62 (+8)",
		"Moderate condition severity (+2)",
		"Early disease stage II (+5)",
		"ECOG 1, fully or mostly active (+10)",
	}, result.Reasons)
}

func TestScoreScenarioB(t *testing.T) {
	record := domain.RawRecord{"age": "10", "conditions": "Asthma; Eczema"}
	patient := newTestNormalizer().Normalize(record)
	metrics := NewMetricsExtractor(quietLogger()).Extract(record)

	result := NewFitScorer(quietLogger()).Score(patient, &metrics)

	assert.Equal(t, 33, result.Score)
	assert.Equal(t, domain.BandLow, result.Band)
	assert.Equal(t, []string{"Minor age (-15)", "2 co-morbidities (-2)"}, result.Reasons)
}

func TestScoreRules(t *testing.T) {
	tests := []struct {
		name    string
		patient domain.Patient
		metrics domain.PatientMetrics
		want    int
	}{
		{name: "baseline", want: 50},
		{name: "age 75", patient: domain.Patient{Age: intPtr(75)}, want: 58},
		{name: "age 76", patient: domain.Patient{Age: intPtr(76)}, want: 45},
		{name: "age 86", patient: domain.Patient{Age: intPtr(86)}, want: 40},
		{name: "low severity", metrics: domain.PatientMetrics{Severity: floatPtr(0.3)}, want: 58},
		{name: "severity 0.4", metrics: domain.PatientMetrics{Severity: floatPtr(0.4)}, want: 52},
		{name: "severity 0.7", metrics: domain.PatientMetrics{Severity: floatPtr(0.7)}, want: 42},
		{name: "stage I", metrics: domain.PatientMetrics{DiseaseStage: "Stage I"}, want: 55},
		{name: "stage III", metrics: domain.PatientMetrics{DiseaseStage: "Stage III"}, want: 50},
		{name: "stage IV", metrics: domain.PatientMetrics{DiseaseStage: "Stage IV"}, want: 40},
		{name: "ecog 2", metrics: domain.PatientMetrics{ECOG: floatPtr(2)}, want: 55},
		{name: "ecog 3", metrics: domain.PatientMetrics{ECOG: floatPtr(3)}, want: 40},
		{name: "nyha 2", metrics: domain.PatientMetrics{NYHA: floatPtr(2)}, want: 55},
		{name: "nyha 3", metrics: domain.PatientMetrics{NYHA: floatPtr(3)}, want: 45},
		{name: "nyha 4", metrics: domain.PatientMetrics{NYHA: floatPtr(4)}, want: 40},
		{name: "hba1c 6", metrics: domain.PatientMetrics{HbA1c: floatPtr(6)}, want: 53},
		{name: "hba1c 9.5", metrics: domain.PatientMetrics{HbA1c: floatPtr(9.5)}, want: 47},
		{name: "hba1c 5", metrics: domain.PatientMetrics{HbA1c: floatPtr(5)}, want: 50},
		{name: "egfr 90", metrics: domain.PatientMetrics{EGFR: floatPtr(90)}, want: 55},
		{name: "egfr 45", metrics: domain.PatientMetrics{EGFR: floatPtr(45)}, want: 47},
		{name: "egfr 20", metrics: domain.PatientMetrics{EGFR: floatPtr(20)}, want: 40},
		{name: "bmi 22", metrics: domain.PatientMetrics{BMI: floatPtr(22)}, want: 52},
		{name: "bmi 40", metrics: domain.PatientMetrics{BMI: floatPtr(40)}, want: 47},
		{name: "four conditions", patient: domain.Patient{Conditions: []string{"a", "b", "c", "d"}}, want: 42},
		{name: "eight medications", patient: domain.Patient{Medications: []string{"1", "2", "3", "4", "5", "6", "7", "8"}}, want: 46},
		{name: "good adherence", metrics: domain.PatientMetrics{Adherence: floatPtr(0.8)}, want: 54},
		{name: "middling adherence", metrics: domain.PatientMetrics{Adherence: floatPtr(0.6)}, want: 50},
		{name: "poor adherence", metrics: domain.PatientMetrics{Adherence: floatPtr(0.4)}, want: 46},
	}

	scorer := NewFitScorer(quietLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := tt.metrics
			assert.Equal(t, tt.want, scorer.Score(tt.patient, &metrics).Score)
		})
	}
}

func TestScoreBoundsAndNilMetrics(t *testing.T) {
	scorer := NewFitScorer(quietLogger())

	worst := domain.Patient{
		Age:         intPtr(90),
		Conditions:  []string{"a", "b", "c", "d"},
		Medications: []string{"1", "2", "3", "4", "5", "6", "7", "8"},
	}
	metrics := domain.PatientMetrics{
		Severity: floatPtr(0.9), DiseaseStage: "Stage IV", ECOG: floatPtr(4), NYHA: floatPtr(4),
		HbA1c: floatPtr(12), EGFR: floatPtr(10), BMI: floatPtr(50), Adherence: floatPtr(0.1),
	}
	result := scorer.Score(worst, &metrics)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, domain.BandLow, result.Band)

	result = scorer.Score(domain.Patient{Age: intPtr(40)}, nil)
	assert.Equal(t, 58, result.Score)
	assert.Equal(t, domain.BandModerate, result.Band)
}

func TestScoreDeterministic(t *testing.T) {
	scorer := NewFitScorer(quietLogger())
	p := domain.Patient{Age: intPtr(50), Conditions: []string{"x"}}
	m := domain.PatientMetrics{ECOG: floatPtr(0)}
	assert.Equal(t, scorer.Score(p, &m), scorer.Score(p, &m))
	assert.Len(t, scorer.Rules(), 11)
}
