package domain

import (
	"context"
	"time"
)

// TrialSearcher retrieves registry trials relevant to a patient.
type TrialSearcher interface {
	Search(ctx context.Context, patient Patient) ([]Trial, error)
}

// NarrativeGenerator is the optional free-text collaborator. Every caller owns
// a fallback for when Generate fails.
type NarrativeGenerator interface {
	Generate(ctx context.Context, req NarrativeRequest) (string, error)
}

// IDGenerator produces the random suffix of synthesized patient ids.
type IDGenerator interface {
	NewID() string
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// JitterSource returns a tie-break value in [0,2).
type JitterSource interface {
	Jitter() float64
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock struct{ T time.Time }

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }

// ZeroJitter disables ranking jitter.
type ZeroJitter struct{}

// Jitter always returns 0.
func (ZeroJitter) Jitter() float64 { return 0 }
