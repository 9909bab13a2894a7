package service

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
	"github.com/clinical-trial-matcher/pkg/external"
)

// Pipeline is the fully wired matching stack shared by the HTTP and MCP hosts.
type Pipeline struct {
	Matcher  *MatchService
	Registry *external.ResilientRegistryClient
	Cache    *external.TrialCache
	logger   *logrus.Logger
}

// NewPipeline builds the registry chain (cache, rate limiter, circuit breaker,
// HTTP client), the optional narrative generator and the match service from
// config. An unreachable Redis degrades to the memory cache.
func NewPipeline(config *domain.Config, logger *logrus.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = logrus.New()
	}
	p := &Pipeline{logger: logger}

	if config.Cache.Enabled {
		cache, err := external.NewTrialCache(config.Cache, logger)
		if err != nil && config.Cache.RedisURL != "" {
			logger.WithError(err).Warn("Redis cache unavailable, using memory cache only")
			memoryOnly := config.Cache
			memoryOnly.RedisURL = ""
			cache, err = external.NewTrialCache(memoryOnly, logger)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create trial cache: %w", err)
		}
		p.Cache = cache
	}

	client := external.NewClinicalTrialsClient(config.Registry.BaseURL, config.Registry.RequestTimeout, logger)
	p.Registry = external.NewResilientRegistryClient(client, p.Cache, config.Registry, logger)
	searcher := NewTrialSearchService(p.Registry, config.Registry, logger)

	var generator domain.NarrativeGenerator
	if config.Narrative.Enabled {
		g, err := external.NewAnthropicGenerator(config.Narrative, logger)
		if err != nil {
			logger.WithError(err).Info("Narrative generator disabled, deterministic fallbacks will be used")
		} else {
			generator = g
		}
	}

	p.Matcher = NewMatchService(MatchServiceOptions{
		Normalizer: NewPatientNormalizer(UUIDGenerator{}, domain.SystemClock{}, logger),
		Searcher:   searcher,
		Ranker:     NewRankingEngine(NewRandomJitter(time.Now().UnixNano()), logger),
		Narratives: NewNarrativeService(generator, config.Narrative.Temperature, logger),
		TopN:       config.Matching.TopN,
	}, logger)

	logger.WithFields(logrus.Fields{
		"registry":  config.Registry.BaseURL,
		"cache":     p.Cache != nil,
		"narrative": generator != nil,
	}).Info("Matching pipeline initialized")
	return p, nil
}

// RegistryStatus reports the registry circuit breaker state.
func (p *Pipeline) RegistryStatus() string {
	return p.Registry.BreakerState().String()
}

// Close releases cache connections.
func (p *Pipeline) Close() error {
	if p.Cache == nil {
		return nil
	}
	return p.Cache.Close()
}
