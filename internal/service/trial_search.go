package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
	"github.com/clinical-trial-matcher/pkg/external"
	"github.com/clinical-trial-matcher/pkg/geo"
)

// MaxSearchTerms caps the number of derived registry queries per patient.
const MaxSearchTerms = 5

// medicalVocabulary marks diagnosis words worth querying on their own.
var medicalVocabulary = []string{
	"disease", "syndrome", "cancer", "carcinoma", "tumor", "lymphoma", "leukemia", "melanoma",
	"cardio", "cardiac", "heart", "chronic", "diabetes", "arthritis", "failure", "disorder",
	"sclerosis", "fibrosis", "hypertension", "asthma", "pulmonary", "renal", "kidney",
}

// TrialSearchService implements domain.TrialSearcher on top of a registry
// querier.
type TrialSearchService struct {
	registry  external.StudyQuerier
	pageSize  int
	maxTerms  int
	geoRadius string
	logger    *logrus.Logger
}

// NewTrialSearchService creates a search service.
func NewTrialSearchService(registry external.StudyQuerier, config domain.RegistryConfig, logger *logrus.Logger) *TrialSearchService {
	if logger == nil {
		logger = logrus.New()
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = external.DefaultPageSize
	}
	maxTerms := config.MaxTerms
	if maxTerms <= 0 || maxTerms > MaxSearchTerms {
		maxTerms = MaxSearchTerms
	}
	radius := config.GeoRadius
	if radius == "" {
		radius = "300mi"
	}
	return &TrialSearchService{
		registry:  registry,
		pageSize:  pageSize,
		maxTerms:  maxTerms,
		geoRadius: radius,
		logger:    logger,
	}
}

type termResult struct {
	trials []domain.Trial
	err    error
}

// Search runs one registry query per derived term concurrently, then merges,
// deduplicates and filters the hits once every query has finished.
func (s *TrialSearchService) Search(ctx context.Context, patient domain.Patient) ([]domain.Trial, error) {
	if !patient.HasClinicalTopic() {
		return nil, domain.NewValidationError("primaryDiagnosis", "insufficient clinical data: a diagnosis or condition is required", patient.ID)
	}

	terms := s.SearchTerms(patient)
	geoFilter := s.geoFilter(patient.Location)

	logger := s.logger.WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"terms":      len(terms),
		"geo":        geoFilter != nil,
	})
	logger.Info("Searching trial registry")

	results := make([]termResult, len(terms))
	var wg sync.WaitGroup
	for i, term := range terms {
		wg.Add(1)
		go func(i int, term string) {
			defer wg.Done()
			trials, err := s.queryTerm(ctx, term, geoFilter)
			results[i] = termResult{trials: trials, err: err}
		}(i, term)
	}
	wg.Wait()

	var merged []domain.Trial
	for i, r := range results {
		if r.err != nil {
			logger.WithError(r.err).WithField("term", terms[i]).Error("Registry query failed")
			return nil, fmt.Errorf("searching %q: %w", terms[i], r.err)
		}
		merged = append(merged, r.trials...)
	}

	unique := DedupeTrials(merged)
	relevant := FilterRelevant(patient, unique)

	logger.WithFields(logrus.Fields{
		"retrieved": len(merged),
		"unique":    len(unique),
		"relevant":  len(relevant),
	}).Info("Trial registry search completed")

	if len(relevant) == 0 {
		return nil, domain.ErrNoResults
	}
	return relevant, nil
}

// queryTerm retries once without the geo filter when a narrowed query fails
// or comes back empty, so a filter the registry rejects or does not honor
// never costs the patient their results.
func (s *TrialSearchService) queryTerm(ctx context.Context, term string, geoFilter *external.GeoFilter) ([]domain.Trial, error) {
	q := external.StudyQuery{Term: term, PageSize: s.pageSize, Geo: geoFilter}
	trials, err := s.registry.QueryStudies(ctx, q)
	if geoFilter == nil || ctx.Err() != nil {
		return trials, err
	}
	switch {
	case err != nil:
		s.logger.WithError(err).WithField("term", term).Warn("Geo-filtered query failed, retrying without location")
	case len(trials) == 0:
		s.logger.WithField("term", term).Warn("Geo-filtered query returned nothing, retrying without location")
	default:
		return trials, nil
	}
	q.Geo = nil
	return s.registry.QueryStudies(ctx, q)
}

func (s *TrialSearchService) geoFilter(location string) *external.GeoFilter {
	_, code, ok := geo.ParseCityState(location)
	if !ok {
		return nil
	}
	p, ok := geo.Centroid(code)
	if !ok {
		return nil
	}
	return &external.GeoFilter{Lat: p.Lat, Lon: p.Lon, Radius: s.geoRadius}
}

// SearchTerms derives up to the configured number of distinct queries: the
// diagnosis verbatim, its vocabulary words longer than three characters, then
// each listed condition.
func (s *TrialSearchService) SearchTerms(patient domain.Patient) []string {
	var candidates []string
	diagnosis := strings.TrimSpace(patient.PrimaryDiagnosis)
	if diagnosis != "" {
		candidates = append(candidates, diagnosis)
		for _, word := range strings.Fields(diagnosis) {
			word = strings.Trim(word, ".,;:()[]\"'")
			if len(word) > 3 && inVocabulary(word) {
				candidates = append(candidates, word)
			}
		}
	}
	candidates = append(candidates, patient.Conditions...)

	terms := make([]string, 0, s.maxTerms)
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, strings.TrimSpace(c))
		if len(terms) == s.maxTerms {
			break
		}
	}
	return terms
}

func inVocabulary(word string) bool {
	lower := strings.ToLower(word)
	for _, v := range medicalVocabulary {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// DedupeTrials keeps the first occurrence of every registry id.
func DedupeTrials(trials []domain.Trial) []domain.Trial {
	out := make([]domain.Trial, 0, len(trials))
	seen := make(map[string]struct{}, len(trials))
	for _, t := range trials {
		if _, ok := seen[t.NCTID]; ok {
			continue
		}
		seen[t.NCTID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FilterRelevant keeps trials whose condition, title or originating search
// term overlaps the patient's diagnosis or any condition.
func FilterRelevant(patient domain.Patient, trials []domain.Trial) []domain.Trial {
	topics := make([]string, 0, len(patient.Conditions)+1)
	if d := strings.ToLower(strings.TrimSpace(patient.PrimaryDiagnosis)); d != "" {
		topics = append(topics, d)
	}
	for _, c := range patient.Conditions {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			topics = append(topics, c)
		}
	}

	out := make([]domain.Trial, 0, len(trials))
	for _, t := range trials {
		fields := []string{
			strings.ToLower(t.Condition),
			strings.ToLower(t.Title),
			strings.ToLower(t.SearchTermUsed),
		}
		if anyOverlap(topics, fields) {
			out = append(out, t)
		}
	}
	return out
}

func anyOverlap(topics, fields []string) bool {
	for _, topic := range topics {
		for _, f := range fields {
			if Overlaps(topic, f) {
				return true
			}
		}
	}
	return false
}
