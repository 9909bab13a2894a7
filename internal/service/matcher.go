package service

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
	"github.com/clinical-trial-matcher/pkg/tabular"
)

// DefaultTopN is the number of ranked trials returned to callers.
const DefaultTopN = 10

type termDeriver interface {
	SearchTerms(patient domain.Patient) []string
}

// MatchService wires the pipeline: parse, normalize and extract, score, search
// and rank.
type MatchService struct {
	normalizer *PatientNormalizer
	extractor  *MetricsExtractor
	scorer     *FitScorer
	searcher   domain.TrialSearcher
	ranker     *RankingEngine
	narratives *NarrativeService
	topN       int
	logger     *logrus.Logger
}

// MatchServiceOptions holds the collaborators of a MatchService. Nil
// components are replaced with defaults; Searcher is required for MatchTrials.
type MatchServiceOptions struct {
	Normalizer *PatientNormalizer
	Extractor  *MetricsExtractor
	Scorer     *FitScorer
	Searcher   domain.TrialSearcher
	Ranker     *RankingEngine
	Narratives *NarrativeService
	TopN       int
}

// NewMatchService creates the pipeline orchestrator.
func NewMatchService(opts MatchServiceOptions, logger *logrus.Logger) *MatchService {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = NewPatientNormalizer(nil, nil, logger)
	}
	if opts.Extractor == nil {
		opts.Extractor = NewMetricsExtractor(logger)
	}
	if opts.Scorer == nil {
		opts.Scorer = NewFitScorer(logger)
	}
	if opts.Ranker == nil {
		opts.Ranker = NewRankingEngine(nil, logger)
	}
	if opts.Narratives == nil {
		opts.Narratives = NewNarrativeService(nil, 0, logger)
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	return &MatchService{
		normalizer: opts.Normalizer,
		extractor:  opts.Extractor,
		scorer:     opts.Scorer,
		searcher:   opts.Searcher,
		ranker:     opts.Ranker,
		narratives: opts.Narratives,
		topN:       opts.TopN,
		logger:     logger,
	}
}

// Narratives returns the narrative service.
func (m *MatchService) Narratives() *NarrativeService {
	return m.narratives
}

// ImportRecords parses comma-separated text into scored patient profiles.
func (m *MatchService) ImportRecords(text string) []domain.PatientProfile {
	return m.ImportRows(tabular.Parse(text))
}

// ImportWorkbook reads an .xlsx upload into scored patient profiles.
func (m *MatchService) ImportWorkbook(r io.Reader) ([]domain.PatientProfile, error) {
	rows, err := tabular.ParseWorkbook(r)
	if err != nil {
		return nil, fmt.Errorf("importing workbook: %w", err)
	}
	return m.ImportRows(rows), nil
}

// ImportRows converts parsed rows into profiles with batch-unique ids.
func (m *MatchService) ImportRows(rows []tabular.Row) []domain.PatientProfile {
	records := make([]domain.RawRecord, len(rows))
	for i, row := range rows {
		records[i] = domain.RecordFromRow(row)
	}
	return m.ImportRecordsBatch(records)
}

// ImportRecordsBatch converts raw records into profiles with batch-unique ids.
func (m *MatchService) ImportRecordsBatch(records []domain.RawRecord) []domain.PatientProfile {
	canonical := make([]domain.RawRecord, len(records))
	for i, record := range records {
		canonical[i] = canonicalKeys(record)
	}
	records = canonical
	patients := m.normalizer.NormalizeBatch(records)
	profiles := make([]domain.PatientProfile, len(records))
	for i, record := range records {
		profiles[i] = m.buildProfile(patients[i], record)
	}

	m.logger.WithField("profiles", len(profiles)).Info("Imported patient records")
	return profiles
}

// Profile normalizes, extracts and scores a single record. Keys are
// normalized the same way tabular headers are, so JSON callers may send
// "Primary Diagnosis" or "primary_diagnosis" alike.
func (m *MatchService) Profile(record domain.RawRecord) domain.PatientProfile {
	record = canonicalKeys(record)
	return m.buildProfile(m.normalizer.Normalize(record), record)
}

// canonicalKeys normalizes record keys. An already canonical key wins a
// collision; otherwise the first colliding key in sorted order does.
func canonicalKeys(record domain.RawRecord) domain.RawRecord {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(domain.RawRecord, len(record))
	for _, k := range keys {
		key := tabular.NormalizeHeader(k)
		if _, taken := out[key]; taken && k != key {
			continue
		}
		out[key] = record[k]
	}
	return out
}

func (m *MatchService) buildProfile(patient domain.Patient, record domain.RawRecord) domain.PatientProfile {
	metrics := m.extractor.Extract(record)
	metrics.PatientID = patient.ID
	return domain.PatientProfile{
		Patient: patient,
		Metrics: metrics,
		Fit:     m.scorer.Score(patient, &metrics),
	}
}

// MatchTrials searches the registry for the profile's patient and returns the
// top ranked trials. Registry errors keep their taxonomy: validation,
// upstream unavailable or no results.
func (m *MatchService) MatchTrials(ctx context.Context, profile domain.PatientProfile) (*domain.MatchResult, error) {
	if m.searcher == nil {
		return nil, fmt.Errorf("%w: no registry configured", domain.ErrUpstreamUnavailable)
	}

	trials, err := m.searcher.Search(ctx, profile.Patient)
	if err != nil {
		return nil, err
	}

	ranked := m.ranker.Rank(profile.Patient, &profile.Metrics, trials)
	total := len(ranked)
	if len(ranked) > m.topN {
		ranked = ranked[:m.topN]
	}

	result := &domain.MatchResult{
		PatientID:  profile.Patient.ID,
		Fit:        profile.Fit,
		Trials:     ranked,
		TotalFound: total,
	}
	if d, ok := m.searcher.(termDeriver); ok {
		result.SearchTerms = d.SearchTerms(profile.Patient)
	}

	m.logger.WithFields(logrus.Fields{
		"patient_id": profile.Patient.ID,
		"found":      total,
		"returned":   len(ranked),
	}).Info("Trial matching completed")
	return result, nil
}
