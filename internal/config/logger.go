package config

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
)

// NewLogger builds a logrus logger from logging configuration. An unknown
// level falls back to info.
func NewLogger(config domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	if strings.ToLower(config.Format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(outputFor(config.Output))

	return logger
}

// outputFor defaults to stderr so stdio transports keep stdout clean.
func outputFor(output string) io.Writer {
	if strings.ToLower(output) == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}
