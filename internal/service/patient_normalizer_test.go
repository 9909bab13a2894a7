package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-trial-matcher/internal/domain"
)

func TestNormalizeScenarioA(t *testing.T) {
	n := newTestNormalizer()
	p := n.Normalize(domain.RawRecord{
		"name":               "Jane Doe",
		"age":                "62",
		"gender":             "F",
		"primary_diagnosis":  "Stage II Breast Cancer",
		"condition_severity": "moderate",
		"ecog":               "1",
	})

	assert.Equal(t, "Jane Doe", p.Name)
	require.NotNil(t, p.Age)
	assert.Equal(t, 62, *p.Age)
	assert.Equal(t, domain.GenderFemale, p.Gender)
	assert.Equal(t, "Stage II Breast Cancer", p.PrimaryDiagnosis)
	assert.Equal(t, fmt.Sprintf("PAT-%d-abc12345", fixedNow.UnixMilli()), p.ID)
	assert.Empty(t, p.Conditions)
	assert.NoError(t, p.Validate())
}

func TestNormalizeEmptyRecord(t *testing.T) {
	p := newTestNormalizer().Normalize(domain.RawRecord{})

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.DefaultPatientName, p.Name)
	assert.Nil(t, p.Age)
	assert.Equal(t, domain.GenderUnknown, p.Gender)
	assert.NotNil(t, p.Conditions)
	assert.NotNil(t, p.Medications)
	assert.NoError(t, p.Validate())
}

func TestNormalizeAliases(t *testing.T) {
	p := newTestNormalizer().Normalize(domain.RawRecord{
		"mrn":                "MRN-77",
		"first_name":         "John",
		"surname":            "Roe",
		"patient_age":        "abc",
		"sex":                "Man",
		"diagnosis":          "",
		"condition":          "Heart Failure",
		"city":               "Austin",
		"state":              "TX",
		"insurance_provider": "Medicare",
	})

	assert.Equal(t, "MRN-77", p.ID)
	assert.Equal(t, "John Roe", p.Name)
	assert.Nil(t, p.Age)
	assert.Equal(t, domain.GenderMale, p.Gender)
	assert.Equal(t, "Heart Failure", p.PrimaryDiagnosis)
	assert.Equal(t, "Austin, TX", p.Location)
	assert.Equal(t, "Medicare", p.Insurance)
}

func TestNormalizeListFields(t *testing.T) {
	p := newTestNormalizer().Normalize(domain.RawRecord{
		"conditions":      "Asthma; Eczema | asthma\nCOPD,",
		"comorbidities":   []string{"Hypertension", "copd"},
		"medical_history": []any{"Obesity", nil, 42},
		"medications":     "Metformin, , Lisinopril",
		"meds":            "metformin",
	})

	assert.Equal(t, []string{"Asthma", "Eczema", "COPD", "Hypertension", "Obesity", "42"}, p.Conditions)
	assert.Equal(t, []string{"Metformin", "Lisinopril"}, p.Medications)
}

func TestNormalizeAge(t *testing.T) {
	tests := []struct {
		name   string
		record domain.RawRecord
		want   *int
	}{
		{name: "direct age", record: domain.RawRecord{"age": "45 years"}, want: intPtr(45)},
		{name: "numeric json age", record: domain.RawRecord{"age": float64(30)}, want: intPtr(30)},
		{name: "zero age rejected", record: domain.RawRecord{"age": "0"}, want: nil},
		{name: "age 150 rejected", record: domain.RawRecord{"age": "150"}, want: nil},
		{name: "invalid age falls back to dob", record: domain.RawRecord{"age": "200", "dob": "1980-06-15"}, want: intPtr(46)},
		{name: "birthday not yet reached", record: domain.RawRecord{"date_of_birth": "1980-06-16"}, want: intPtr(45)},
		{name: "us date layout", record: domain.RawRecord{"birth_date": "06/14/2000"}, want: intPtr(26)},
		{name: "unparseable dob", record: domain.RawRecord{"dob": "sometime"}, want: nil},
		{name: "future dob", record: domain.RawRecord{"dob": "2030-01-01"}, want: nil},
	}

	n := newTestNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.record).Age)
		})
	}
}

func TestNormalizeGender(t *testing.T) {
	tests := map[string]domain.Gender{
		"m":          domain.GenderMale,
		" MALE ":     domain.GenderMale,
		"Woman":      domain.GenderFemale,
		"f":          domain.GenderFemale,
		"non-binary": domain.GenderNonBinary,
		"NB":         domain.GenderNonBinary,
		"unknown":    domain.GenderUnknown,
		"":           domain.GenderUnknown,
	}
	for input, want := range tests {
		assert.Equal(t, want, NormalizeGender(input), input)
	}
}

func TestNormalizeBatchUniqueIDs(t *testing.T) {
	n := newTestNormalizer()
	patients := n.NormalizeBatch([]domain.RawRecord{
		{"id": "P1"},
		{"id": "P1"},
		{},
		{},
		{"id": "P1"},
	})

	ids := make(map[string]bool)
	for _, p := range patients {
		assert.False(t, ids[p.ID], "duplicate id %s", p.ID)
		ids[p.ID] = true
	}
	assert.Equal(t, "P1", patients[0].ID)
	assert.Equal(t, "P1-2", patients[1].ID)
	assert.Equal(t, "P1-3", patients[4].ID)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	record := domain.RawRecord{"name": "A", "conditions": "x;y"}
	n := newTestNormalizer()
	assert.Equal(t, n.Normalize(record), n.Normalize(record))
}

func TestWithAliases(t *testing.T) {
	table := DefaultAliases
	table.Name = []string{"nombre"}
	p := newTestNormalizer().WithAliases(table).Normalize(domain.RawRecord{"nombre": "Ana", "name": "ignored"})
	assert.Equal(t, "Ana", p.Name)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{input: "7.2%", want: 7.2, ok: true},
		{input: " 45 mL/min ", want: 45, ok: true},
		{input: "-1.5", want: -1.5, ok: true},
		{input: "n/a", ok: false},
		{input: "1-2", ok: false},
		{input: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, tt.input)
		}
	}
}

func TestAgeAt(t *testing.T) {
	age, ok := AgeAt(fixedNow.AddDate(-40, 0, 0), fixedNow)
	assert.True(t, ok)
	assert.Equal(t, 40, age)

	_, ok = AgeAt(fixedNow.AddDate(-200, 0, 0), fixedNow)
	assert.False(t, ok)
}
