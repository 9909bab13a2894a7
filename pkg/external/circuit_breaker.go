package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/clinical-trial-matcher/internal/domain"
)

// StudyQuerier performs a single registry search.
type StudyQuerier interface {
	QueryStudies(ctx context.Context, q StudyQuery) ([]domain.Trial, error)
}

// ResilientRegistryClient wraps a StudyQuerier with a response cache, an
// outbound rate limiter, a circuit breaker and a per-request timeout. Every
// failure it returns wraps domain.ErrUpstreamUnavailable.
type ResilientRegistryClient struct {
	client         StudyQuerier
	cache          *TrialCache
	breaker        *gobreaker.CircuitBreaker
	limiter        *rate.Limiter
	requestTimeout time.Duration
	logger         *logrus.Logger
}

// NewResilientRegistryClient creates a resilient client. cache may be nil.
func NewResilientRegistryClient(client StudyQuerier, cache *TrialCache, config domain.RegistryConfig, logger *logrus.Logger) *ResilientRegistryClient {
	if logger == nil {
		logger = logrus.New()
	}
	cb := config.CircuitBreaker
	if cb.MaxRequests == 0 {
		cb.MaxRequests = 3
	}
	if cb.Interval == 0 {
		cb.Interval = 30 * time.Second
	}
	if cb.Timeout == 0 {
		cb.Timeout = 60 * time.Second
	}
	if cb.FailureThreshold == 0 {
		cb.FailureThreshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ClinicalTrials.gov",
		MaxRequests: cb.MaxRequests,
		Interval:    cb.Interval,
		Timeout:     cb.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cb.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateBurst
	if burst <= 0 {
		burst = 5
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &ResilientRegistryClient{
		client:         client,
		cache:          cache,
		breaker:        breaker,
		limiter:        rate.NewLimiter(limit, burst),
		requestTimeout: timeout,
		logger:         logger,
	}
}

// QueryStudies serves q from cache or the registry. Cached and live results
// are identical in content and order.
func (r *ResilientRegistryClient) QueryStudies(ctx context.Context, q StudyQuery) ([]domain.Trial, error) {
	key := q.CacheKey()
	if r.cache != nil {
		if trials, ok := r.cache.Get(ctx, key); ok {
			r.logger.WithField("term", q.Term).Debug("Registry cache hit")
			// The key ignores case; report the term this caller searched.
			for i := range trials {
				trials[i].SearchTermUsed = q.Term
			}
			return trials, nil
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	if err := r.limiter.Wait(reqCtx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrUpstreamUnavailable, err)
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.QueryStudies(reqCtx, q)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker open", domain.ErrUpstreamUnavailable)
		}
		r.logger.WithError(err).WithField("term", q.Term).Error("Registry query failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	trials := result.([]domain.Trial)
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, trials); err != nil {
			r.logger.WithError(err).Warn("Failed to cache registry response")
		}
	}
	return trials, nil
}

// BreakerState returns the current circuit breaker state.
func (r *ResilientRegistryClient) BreakerState() gobreaker.State {
	return r.breaker.State()
}
