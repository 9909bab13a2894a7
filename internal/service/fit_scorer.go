package service

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
)

// FitBaseline is the score every patient starts from.
const FitBaseline = 50

// FitRule is one point adjustment of the eligibility heuristic. Evaluate
// reports applied=false when its data is unavailable.
type FitRule struct {
	Code     string
	Evaluate func(p *domain.Patient, m *domain.PatientMetrics) (delta int, reason string, applied bool)
}

// FitScorer computes the transparent 0-100 fit score. The thresholds and
// point values are fixed; downstream fixtures depend on them.
type FitScorer struct {
	logger *logrus.Logger
	rules  []FitRule
}

// NewFitScorer creates a scorer with the standard ordered rule list.
func NewFitScorer(logger *logrus.Logger) *FitScorer {
	if logger == nil {
		logger = logrus.New()
	}
	s := &FitScorer{logger: logger}
	s.initializeRules()
	return s
}

// Rules returns the rule codes in evaluation order.
func (s *FitScorer) Rules() []string {
	codes := make([]string, len(s.rules))
	for i, r := range s.rules {
		codes[i] = r.Code
	}
	return codes
}

// Score evaluates every rule against the patient and optional metrics.
func (s *FitScorer) Score(patient domain.Patient, metrics *domain.PatientMetrics) domain.FitResult {
	if metrics == nil {
		metrics = &domain.PatientMetrics{}
	}

	total := float64(FitBaseline)
	reasons := make([]string, 0, len(s.rules))
	for _, rule := range s.rules {
		delta, reason, applied := rule.Evaluate(&patient, metrics)
		if !applied {
			continue
		}
		total += float64(delta)
		reasons = append(reasons, fmt.Sprintf("%s (%+d)", reason, delta))
	}

	score := int(math.Round(clamp(total, 0, 100)))
	result := domain.FitResult{
		Score:   score,
		Reasons: reasons,
		Band:    domain.BandForScore(score),
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id":    patient.ID,
		"score":         result.Score,
		"band":          result.Band,
		"applied_rules": len(reasons),
	}).Debug("Computed fit score")
	return result
}

func (s *FitScorer) addRule(code string, eval func(p *domain.Patient, m *domain.PatientMetrics) (int, string, bool)) {
	s.rules = append(s.rules, FitRule{Code: code, Evaluate: eval})
}

func (s *FitScorer) initializeRules() {
	s.addRule("AGE", func(p *domain.Patient, _ *domain.PatientMetrics) (int, string, bool) {
		if p.Age == nil {
			return 0, "", false
		}
		age := *p.Age
		switch {
		case age < 18:
			return -15, "Minor age", true
		case age <= 75:
			return 8, fmt.Sprintf("Adult age %d", age), true
		case age <= 85:
			return -5, fmt.Sprintf("Older adult age %d", age), true
		default:
			return -10, fmt.Sprintf("Advanced age %d", age), true
		}
	})

	s.addRule("SEVERITY", func(_ *domain.Patient, m *domain.PatientMetrics) (int, string, bool) {
		if m.Severity == nil {
			return 0, "", false
		}
		v := *m.Severity
		switch {
		case v < 0.4:
			return 8, "Low condition severity", true
		case v < 0.7:
			return 2, "Moderate condition severity", true
		default:
			return -8, "High condition severity", true
		}
	})

	s.addRule("STAGE", func(_ *domain.Patient, m *domain.PatientMetrics) (int, string, bool) {
		if m.DiseaseStage == "" {
			return 0, "", false
		}
		roman, ok := matchStage(m.DiseaseStage)
		if !ok {
			return 0, "", false
		}
		switch roman {
		case "I", "II":
			return 5, "Early disease stage " + roman, true
		case "IV":
			return -10, "Advanced disease stage IV", true
		default:
			return 0, "", false
		}
	})

	s.addRule("ECOG", func(_ *domain.Patient, m *domain.PatientMetrics) (int, string, bool) {
		if m.ECOG == nil {
			return 0, "", false
		}
		v := *m.ECOG
		switch {
		case v <= 1:
			return 10, fmt.Sprintf("ECOG %g, fully or mostly active", v), true
		case v < 3:
			return 5, fmt.Sprintf("ECOG %g, ambulatory", v), true
		default:
			return -10, fmt.Sprintf("ECOG %g, limited self-care", v), true
		}
	})

	s.addRule("NYHA", func(_ *domain.Patient, m *domain.PatientMetrics) (int, string, bool) {
		if m.NYHA == nil {
			return 0, "", false
		}
		v := *m.NYHA
		switch {
		case v <= 2:
			return 5, fmt.Sprintf("NYHA class %g", v), true
		case v <= 3:
			return -5, fmt.Sprintf("NYHA class %g", v), true
		default:
			return -10, fmt.Sprintf("NYHA class %g", v), true
		}
	})

	s.addRule("HBA1C", func(_ *domain.Patient, m *domain.PatientMetrics) (int, string, bool) {
		if m.HbA1c == nil {
			return 0, "", false
		}
		v := *m.HbA1c
		switch {
		case v > 9:
			return -3, fmt.Sprintf("Poorly controlled HbA1c %g", v), true
		case v >= 6:
			return 3, fmt.Sprintf("HbA1c %g in trial range", v), true
		default:
			return 0, "", false
		}
	})

	s.addRule("EGFR", func(_ *domain.Patient, m *domain.PatientMetrics) (int, string, bool) {
		if m.EGFR == nil {
			return 0, "", false
		}
		v := *m.EGFR
		switch {
		case v > 60:
			return 5, fmt.Sprintf("Preserved kidney function (eGFR %g)", v), true
		case v >= 30:
			return -3, fmt.Sprintf("Reduced kidney function (eGFR %g)", v), true
		default:
			return -10, fmt.Sprintf("Severely reduced kidney function (eGFR %g)", v), true
		}
	})

	s.addRule("BMI", func(_ *domain.Patient, m *domain.PatientMetrics) (int, string, bool) {
		if m.BMI == nil {
			return 0, "", false
		}
		v := *m.BMI
		if v >= 18.5 && v <= 35 {
			return 2, fmt.Sprintf("BMI %g in range", v), true
		}
		return -3, fmt.Sprintf("BMI %g out of range", v), true
	})

	s.addRule("COMORBIDITY", func(p *domain.Patient, _ *domain.PatientMetrics) (int, string, bool) {
		n := len(p.Conditions)
		switch {
		case n >= 4:
			return -8, fmt.Sprintf("%d co-morbidities", n), true
		case n >= 1:
			return -2, fmt.Sprintf("%d co-morbidities", n), true
		default:
			return 0, "", false
		}
	})

	s.addRule("POLYPHARMACY", func(p *domain.Patient, _ *domain.PatientMetrics) (int, string, bool) {
		if n := len(p.Medications); n >= 8 {
			return -4, fmt.Sprintf("Polypharmacy (%d medications)", n), true
		}
		return 0, "", false
	})

	s.addRule("ADHERENCE", func(_ *domain.Patient, m *domain.PatientMetrics) (int, string, bool) {
		if m.Adherence == nil {
			return 0, "", false
		}
		v := *m.Adherence
		switch {
		case v >= 0.8:
			return 4, "Good medication adherence", true
		case v < 0.5:
			return -4, "Poor medication adherence", true
		default:
			return 0, "", false
		}
	})
}
