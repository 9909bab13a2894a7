package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/clinical-trial-matcher/internal/domain"
)

// Narrative call-site tuning.
const (
	analysisMaxTokens  = 600
	reasoningMaxTokens = 300
	referralMaxTokens  = 1200
)

// NarrativeService owns every call into the optional text generator. Each
// method returns generated prose when available and its own deterministic
// fallback otherwise; none of them return an error.
type NarrativeService struct {
	generator   domain.NarrativeGenerator
	temperature float64
	markdown    goldmark.Markdown
	logger      *logrus.Logger
}

// NewNarrativeService creates a narrative service. generator may be nil.
func NewNarrativeService(generator domain.NarrativeGenerator, temperature float64, logger *logrus.Logger) *NarrativeService {
	if logger == nil {
		logger = logrus.New()
	}
	return &NarrativeService{
		generator:   generator,
		temperature: temperature,
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:      logger,
	}
}

// Available reports whether a generator is configured.
func (s *NarrativeService) Available() bool {
	return s.generator != nil
}

// ClinicalAnalysis describes the patient's overall trial fitness.
func (s *NarrativeService) ClinicalAnalysis(ctx context.Context, profile domain.PatientProfile) string {
	prompt := fmt.Sprintf(
		"Write a short clinical trial readiness analysis.\nPatient: %s\nFit score: %d/100 (%s)\nScoring factors:\n- %s",
		describePatient(profile.Patient), profile.Fit.Score, profile.Fit.Band, strings.Join(profile.Fit.Reasons, "\n- "))

	return s.generate(ctx, "clinical_analysis", prompt, analysisMaxTokens, func() string {
		return AnalysisFallback(profile)
	})
}

// MatchReasoning explains why a trial was matched to the patient.
func (s *NarrativeService) MatchReasoning(ctx context.Context, patient domain.Patient, trial domain.Trial) string {
	prompt := fmt.Sprintf(
		"Explain in two or three sentences why this trial may suit the patient.\nPatient: %s\nTrial: %s (%s), condition %s, phase %s, status %s\nEligibility:\n%s",
		describePatient(patient), trial.Title, trial.NCTID, trial.Condition, trial.Phase, trial.Status, trial.Eligibility)

	return s.generate(ctx, "match_reasoning", prompt, reasoningMaxTokens, func() string {
		return MatchReasoningFallback(patient, trial)
	})
}

// ReferralLetter drafts a markdown referral letter for the trial site.
func (s *NarrativeService) ReferralLetter(ctx context.Context, patient domain.Patient, trial domain.Trial) string {
	prompt := fmt.Sprintf(
		"Draft a referral letter in markdown to the study team of %s (%s).\nPatient: %s\nStudy contact: %s",
		trial.Title, trial.NCTID, describePatient(patient), trial.Contact)

	return s.generate(ctx, "referral_letter", prompt, referralMaxTokens, func() string {
		return ReferralFallback(patient, trial)
	})
}

// RenderHTML converts a markdown narrative to HTML.
func (s *NarrativeService) RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return buf.String(), nil
}

func (s *NarrativeService) generate(ctx context.Context, site, prompt string, maxTokens int, fallback func() string) string {
	logger := s.logger.WithField("call_site", site)
	if s.generator == nil {
		logger.WithError(domain.ErrNarrativeUnavailable).Debug("Using narrative fallback")
		return fallback()
	}

	text, err := s.generator.Generate(ctx, domain.NarrativeRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		logger.WithError(err).Warn("Narrative generation failed, using fallback")
		return fallback()
	}
	if text = strings.TrimSpace(text); text == "" {
		logger.Warn("Narrative generator returned empty text, using fallback")
		return fallback()
	}
	return text
}

// AnalysisFallback is the deterministic clinical analysis text.
func AnalysisFallback(profile domain.PatientProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has a clinical trial fit score of %d/100 (%s).",
		profile.Patient.Name, profile.Fit.Score, profile.Fit.Band)
	if len(profile.Fit.Reasons) > 0 {
		fmt.Fprintf(&b, " Contributing factors: %s.", strings.Join(profile.Fit.Reasons, "; "))
	}
	return b.String()
}

// MatchReasoningFallback is the deterministic match explanation.
func MatchReasoningFallback(patient domain.Patient, trial domain.Trial) string {
	topic := patient.PrimaryDiagnosis
	if topic == "" && len(patient.Conditions) > 0 {
		topic = patient.Conditions[0]
	}
	return fmt.Sprintf("%s (%s) studies %s and was found by searching for %q, which relates to the patient's %s. Match score: %d/100.",
		trial.Title, trial.NCTID, orDefault(trial.Condition, "a related condition"), trial.SearchTermUsed,
		orDefault(topic, "clinical profile"), trial.MatchScore)
}

// ReferralFallback is the deterministic markdown referral letter.
func ReferralFallback(patient domain.Patient, trial domain.Trial) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Referral: %s\n\n", orDefault(trial.Title, trial.NCTID))
	fmt.Fprintf(&b, "To the study team for **%s**,\n\n", trial.NCTID)
	fmt.Fprintf(&b, "I am referring %s for consideration in this study.\n\n", patient.Name)
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Patient ID | %s |\n", patient.ID)
	if patient.Age != nil {
		fmt.Fprintf(&b, "| Age | %d |\n", *patient.Age)
	}
	if patient.Gender != domain.GenderUnknown {
		fmt.Fprintf(&b, "| Gender | %s |\n", patient.Gender)
	}
	fmt.Fprintf(&b, "| Primary diagnosis | %s |\n", orDefault(patient.PrimaryDiagnosis, "Not recorded"))
	if len(patient.Conditions) > 0 {
		fmt.Fprintf(&b, "| Other conditions | %s |\n", strings.Join(patient.Conditions, ", "))
	}
	if len(patient.Medications) > 0 {
		fmt.Fprintf(&b, "| Current medications | %s |\n", strings.Join(patient.Medications, ", "))
	}
	b.WriteString("\nPlease contact the referring clinician to discuss eligibility screening.\n")
	if trial.Contact != "" {
		fmt.Fprintf(&b, "\nStudy contact on record: %s\n", trial.Contact)
	}
	return b.String()
}

func describePatient(p domain.Patient) string {
	parts := []string{p.Name}
	if p.Age != nil {
		parts = append(parts, fmt.Sprintf("age %d", *p.Age))
	}
	if p.Gender != domain.GenderUnknown {
		parts = append(parts, string(p.Gender))
	}
	if p.PrimaryDiagnosis != "" {
		parts = append(parts, "diagnosis "+p.PrimaryDiagnosis)
	}
	if len(p.Conditions) > 0 {
		parts = append(parts, "conditions "+strings.Join(p.Conditions, ", "))
	}
	return strings.Join(parts, ", ")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
