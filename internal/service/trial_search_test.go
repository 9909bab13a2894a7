package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinical-trial-matcher/internal/domain"
	"github.com/clinical-trial-matcher/pkg/external"
)

// MockStudyQuerier is a mock implementation of external.StudyQuerier
type MockStudyQuerier struct {
	mock.Mock
}

func (m *MockStudyQuerier) QueryStudies(ctx context.Context, q external.StudyQuery) ([]domain.Trial, error) {
	args := m.Called(ctx, q)
	if trials := args.Get(0); trials != nil {
		return trials.([]domain.Trial), args.Error(1)
	}
	return nil, args.Error(1)
}

func plainQuery(term string) external.StudyQuery {
	return external.StudyQuery{Term: term, PageSize: external.DefaultPageSize}
}

func trialsFor(term, condition string, ids ...int) []domain.Trial {
	trials := make([]domain.Trial, len(ids))
	for i, id := range ids {
		trials[i] = domain.Trial{
			NCTID:          fmt.Sprintf("NCT%08d", id),
			Title:          condition + " study",
			Condition:      condition,
			SearchTermUsed: term,
			DataSource:     domain.RegistryDataSource,
		}
	}
	return trials
}

func newSearchService(querier external.StudyQuerier) *TrialSearchService {
	return NewTrialSearchService(querier, domain.RegistryConfig{}, quietLogger())
}

func TestSearchRejectsPatientWithoutTopic(t *testing.T) {
	querier := new(MockStudyQuerier)
	_, err := newSearchService(querier).Search(context.Background(), domain.Patient{ID: "P1"})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	querier.AssertNotCalled(t, "QueryStudies", mock.Anything, mock.Anything)
}

func TestSearchDeduplicatesAcrossTerms(t *testing.T) {
	querier := new(MockStudyQuerier)
	querier.On("QueryStudies", mock.Anything, plainQuery("Type 2 Diabetes")).
		Return(trialsFor("Type 2 Diabetes", "Type 2 Diabetes", 1, 2), nil)
	querier.On("QueryStudies", mock.Anything, plainQuery("Diabetes")).
		Return(trialsFor("Diabetes", "Diabetes", 2, 3, 4), nil)

	trials, err := newSearchService(querier).Search(context.Background(), domain.Patient{ID: "P1", PrimaryDiagnosis: "Type 2 Diabetes"})
	require.NoError(t, err)

	ids := make([]string, len(trials))
	for i, tr := range trials {
		ids[i] = tr.NCTID
	}
	assert.Equal(t, []string{"NCT00000001", "NCT00000002", "NCT00000003", "NCT00000004"}, ids)
	assert.Equal(t, "Type 2 Diabetes", trials[1].SearchTermUsed, "first occurrence wins")
	querier.AssertExpectations(t)
}

func TestSearchFiltersIrrelevantTrials(t *testing.T) {
	patient := domain.Patient{ID: "P1", Conditions: []string{"Asthma"}}
	trials := []domain.Trial{
		{NCTID: "A", Condition: "Asthma", SearchTermUsed: "x"},
		{NCTID: "B", Title: "A study in severe asthma", SearchTermUsed: "x"},
		{NCTID: "C", Condition: "Migraine", Title: "Headache", SearchTermUsed: "Asthma"},
		{NCTID: "D", Condition: "Migraine", Title: "Headache", SearchTermUsed: "Migraine"},
	}

	relevant := FilterRelevant(patient, trials)
	require.Len(t, relevant, 3)
	assert.Equal(t, "C", relevant[2].NCTID)
}

func TestSearchNoRelevantResults(t *testing.T) {
	querier := new(MockStudyQuerier)
	querier.On("QueryStudies", mock.Anything, plainQuery("Asthma")).Return([]domain.Trial{}, nil)

	_, err := newSearchService(querier).Search(context.Background(), domain.Patient{ID: "P1", Conditions: []string{"Asthma"}})
	assert.ErrorIs(t, err, domain.ErrNoResults)
	assert.NotErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestSearchUpstreamFailure(t *testing.T) {
	querier := new(MockStudyQuerier)
	querier.On("QueryStudies", mock.Anything, plainQuery("Heart Failure")).
		Return(trialsFor("Heart Failure", "Heart Failure", 1), nil)
	querier.On("QueryStudies", mock.Anything, plainQuery("Heart")).
		Return(trialsFor("Heart", "Heart Failure", 2), nil)
	querier.On("QueryStudies", mock.Anything, plainQuery("Failure")).
		Return(nil, fmt.Errorf("%w: status 503", domain.ErrUpstreamUnavailable))

	_, err := newSearchService(querier).Search(context.Background(), domain.Patient{ID: "P1", PrimaryDiagnosis: "Heart Failure"})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNoResults)
}

func TestSearchGeoFallback(t *testing.T) {
	querier := new(MockStudyQuerier)
	withGeo := mock.MatchedBy(func(q external.StudyQuery) bool { return q.Geo != nil })
	querier.On("QueryStudies", mock.Anything, withGeo).Return([]domain.Trial{}, nil).Once()
	querier.On("QueryStudies", mock.Anything, plainQuery("Asthma")).
		Return(trialsFor("Asthma", "Asthma", 7), nil).Once()

	patient := domain.Patient{ID: "P1", PrimaryDiagnosis: "Asthma", Location: "Boston, MA"}
	trials, err := newSearchService(querier).Search(context.Background(), patient)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	querier.AssertExpectations(t)

	geoCall := querier.Calls[0].Arguments.Get(1).(external.StudyQuery)
	require.NotNil(t, geoCall.Geo)
	assert.Equal(t, "300mi", geoCall.Geo.Radius)
}

func TestSearchGeoRejectedFallsBack(t *testing.T) {
	querier := new(MockStudyQuerier)
	withGeo := mock.MatchedBy(func(q external.StudyQuery) bool { return q.Geo != nil })
	querier.On("QueryStudies", mock.Anything, withGeo).
		Return(nil, fmt.Errorf("%w: registry returned status 400", domain.ErrUpstreamUnavailable)).Once()
	querier.On("QueryStudies", mock.Anything, plainQuery("Asthma")).
		Return(trialsFor("Asthma", "Asthma", 3), nil).Once()

	patient := domain.Patient{ID: "P1", PrimaryDiagnosis: "Asthma", Location: "Austin, TX"}
	trials, err := newSearchService(querier).Search(context.Background(), patient)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, "Asthma", trials[0].SearchTermUsed)
	querier.AssertExpectations(t)
}

func TestSearchTerms(t *testing.T) {
	svc := newSearchService(new(MockStudyQuerier))

	tests := []struct {
		name    string
		patient domain.Patient
		want    []string
	}{
		{
			name:    "diagnosis words and conditions",
			patient: domain.Patient{PrimaryDiagnosis: "Chronic Kidney Disease", Conditions: []string{"Hypertension", "chronic"}},
			want:    []string{"Chronic Kidney Disease", "Chronic", "Kidney", "Disease", "Hypertension"},
		},
		{
			name:    "short words skipped",
			patient: domain.Patient{PrimaryDiagnosis: "HIV disease"},
			want:    []string{"HIV disease", "disease"},
		},
		{
			name:    "capped at five",
			patient: domain.Patient{Conditions: []string{"a", "b", "c", "d", "e", "f"}},
			want:    []string{"a", "b", "c", "d", "e"},
		},
		{
			name:    "conditions only",
			patient: domain.Patient{Conditions: []string{"Asthma", "ASTHMA"}},
			want:    []string{"Asthma"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.SearchTerms(tt.patient))
		})
	}
}

func TestDedupeTrials(t *testing.T) {
	trials := []domain.Trial{{NCTID: "A", Title: "first"}, {NCTID: "B"}, {NCTID: "A", Title: "second"}}
	out := DedupeTrials(trials)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Title)
}
