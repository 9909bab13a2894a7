package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
)

var fixedNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() string { return f.id }

type constJitter float64

func (c constJitter) Jitter() float64 { return float64(c) }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newTestNormalizer() *PatientNormalizer {
	return NewPatientNormalizer(fixedIDs{id: "abc12345"}, domain.FixedClock{T: fixedNow}, quietLogger())
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
