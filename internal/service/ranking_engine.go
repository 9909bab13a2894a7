package service

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
	"github.com/clinical-trial-matcher/pkg/geo"
)

// Ranking score bounds and starting point.
const (
	RankBaseline  = 75
	MinMatchScore = 50
	MaxMatchScore = 100
)

// RandomJitter draws uniform tie-break values in [0,2).
type RandomJitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomJitter creates a jitter source seeded with seed.
func NewRandomJitter(seed int64) *RandomJitter {
	return &RandomJitter{rng: rand.New(rand.NewSource(seed))}
}

// Jitter implements domain.JitterSource.
func (j *RandomJitter) Jitter() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rng.Float64() * 2
}

// RankingEngine scores retrieved trials against a patient and orders them.
type RankingEngine struct {
	jitter domain.JitterSource
	logger *logrus.Logger
}

// NewRankingEngine creates a ranking engine. A nil jitter source disables jitter.
func NewRankingEngine(jitter domain.JitterSource, logger *logrus.Logger) *RankingEngine {
	if jitter == nil {
		jitter = domain.ZeroJitter{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RankingEngine{jitter: jitter, logger: logger}
}

// Rank returns a copy of trials with MatchScore set, sorted by descending
// score. Equal scores keep their input order. Truncation is the caller's job.
func (r *RankingEngine) Rank(patient domain.Patient, metrics *domain.PatientMetrics, trials []domain.Trial) []domain.Trial {
	ranked := make([]domain.Trial, len(trials))
	copy(ranked, trials)

	for i := range ranked {
		ranked[i].MatchScore = r.ScoreTrial(patient, metrics, ranked[i])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MatchScore > ranked[j].MatchScore
	})

	r.logger.WithFields(logrus.Fields{
		"patient_id":  patient.ID,
		"trial_count": len(ranked),
	}).Debug("Ranked trials")
	return ranked
}

// ScoreTrial computes the match score of a single trial, clamped to [50,100].
func (r *RankingEngine) ScoreTrial(patient domain.Patient, _ *domain.PatientMetrics, trial domain.Trial) int {
	score := float64(RankBaseline)

	diagnosis := strings.ToLower(strings.TrimSpace(patient.PrimaryDiagnosis))
	condition := strings.ToLower(strings.TrimSpace(trial.Condition))
	term := strings.ToLower(strings.TrimSpace(trial.SearchTermUsed))

	if Overlaps(diagnosis, condition) {
		score += 20
		if term != "" && strings.Contains(diagnosis, term) {
			score += 15
		}
	}

	for _, c := range patient.Conditions {
		if Overlaps(strings.ToLower(c), condition) {
			score += 12
			break
		}
	}

	score += eligibilityAdjustment(patient, strings.ToLower(trial.Eligibility))

	if locationMatches(patient.Location, trial.Locations) {
		score += 8
	}

	switch status := normalizeStatus(trial.Status); {
	case strings.HasPrefix(status, "recruiting"):
		score += 8
	case strings.HasPrefix(status, "not yet recruiting"):
		score += 4
	}

	phase := strings.ToUpper(trial.Phase)
	switch {
	case strings.Contains(phase, "3"):
		score += 6
	case strings.Contains(phase, "2"):
		score += 3
	}

	score += r.jitter.Jitter()

	return int(math.Round(clamp(score, MinMatchScore, MaxMatchScore)))
}

func eligibilityAdjustment(patient domain.Patient, text string) float64 {
	if patient.Age == nil || text == "" {
		return 0
	}
	age := *patient.Age
	var delta float64
	if age >= 18 && strings.Contains(text, "adult") {
		delta += 6
	}
	if age >= 65 && strings.Contains(text, "elder") {
		delta += 3
	}
	if age < 18 {
		if strings.Contains(text, "pediatric") {
			delta += 8
		}
		if strings.Contains(text, "18 years") {
			delta -= 25
		}
	}
	return delta
}

func locationMatches(patientLocation string, trialLocations []string) bool {
	if strings.TrimSpace(patientLocation) == "" {
		return false
	}
	state := geo.StateToken(patientLocation)
	if state == "" {
		return false
	}
	for _, loc := range trialLocations {
		if geo.StateToken(loc) == state {
			return true
		}
	}
	return false
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(status), "_", " "))
}

// Overlaps reports whether either non-empty string contains the other.
func Overlaps(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
