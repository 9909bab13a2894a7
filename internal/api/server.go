// Package api exposes the matching pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
	"github.com/clinical-trial-matcher/internal/middleware"
	"github.com/clinical-trial-matcher/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// StatusReporter describes the state of a backing dependency for /health.
type StatusReporter func() string

// Server represents the HTTP server
type Server struct {
	config   *domain.Config
	matcher  *service.MatchService
	registry StatusReporter
	router   *gin.Engine
	server   *http.Server
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(config *domain.Config, matcher *service.MatchService, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestLogger(logger))

	server := &Server{
		config:  config,
		matcher: matcher,
		router:  router,
		logger:  logger,
	}
	server.setupRoutes()

	return server
}

// WithRegistryStatus attaches a reporter for the registry circuit state.
func (s *Server) WithRegistryStatus(reporter StatusReporter) *Server {
	s.registry = reporter
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RateLimit(s.config.Server.RateLimit, s.config.Server.RateBurst))
	{
		v1.POST("/patients/import", s.handleImport)
		v1.POST("/patients/profile", s.handleProfile)
		v1.POST("/trials/match", s.handleMatch)
		v1.POST("/narratives/analysis", s.handleAnalysis)
		v1.POST("/narratives/match-reasoning", s.handleMatchReasoning)
		v1.POST("/narratives/referral", s.handleReferral)
	}
}

type recordRequest struct {
	Record   domain.RawRecord `json:"record" binding:"required"`
	Location string           `json:"location,omitempty"`
}

type trialRequest struct {
	Record domain.RawRecord `json:"record" binding:"required"`
	Trial  domain.Trial     `json:"trial"`
}

type narrativeResponse struct {
	PatientID string `json:"patientId"`
	NCTID     string `json:"nctId,omitempty"`
	Text      string `json:"text"`
	HTML      string `json:"html,omitempty"`
	Generated bool   `json:"generated"`
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"narrative": s.matcher.Narratives().Available(),
	}
	if s.registry != nil {
		body["registry"] = s.registry()
	}
	c.JSON(http.StatusOK, body)
}

// handleImport accepts a CSV body or a multipart upload named "file". Files
// ending in .xlsx are read as workbooks.
func (s *Server) handleImport(c *gin.Context) {
	maxBytes := s.config.Server.MaxUploadMB << 20
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	var profiles []domain.PatientProfile
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "multipart upload requires a file field", err)
			return
		}
		file, err := header.Open()
		if err != nil {
			s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "unable to open upload", err)
			return
		}
		defer file.Close()

		if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
			profiles, err = s.matcher.ImportWorkbook(file)
			if err != nil {
				s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "unreadable workbook", err)
				return
			}
		} else {
			text, err := io.ReadAll(file)
			if err != nil {
				s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "unable to read upload", err)
				return
			}
			profiles = s.matcher.ImportRecords(string(text))
		}
	} else {
		text, err := io.ReadAll(c.Request.Body)
		if err != nil {
			s.abort(c, http.StatusRequestEntityTooLarge, domain.ErrCodeInvalidInput, "unable to read request body", err)
			return
		}
		profiles = s.matcher.ImportRecords(string(text))
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(profiles),
		"profiles": profiles,
	})
}

func (s *Server) handleProfile(c *gin.Context) {
	var record domain.RawRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "request body must be a JSON object", err)
		return
	}
	c.JSON(http.StatusOK, s.matcher.Profile(record))
}

func (s *Server) handleMatch(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "request must contain a record", err)
		return
	}

	profile := s.matcher.Profile(req.Record)
	profile.Patient = profile.Patient.WithLocation(req.Location)

	result, err := s.matcher.MatchTrials(c.Request.Context(), profile)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnalysis(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "request must contain a record", err)
		return
	}

	narratives := s.matcher.Narratives()
	profile := s.matcher.Profile(req.Record)
	c.JSON(http.StatusOK, narrativeResponse{
		PatientID: profile.Patient.ID,
		Text:      narratives.ClinicalAnalysis(c.Request.Context(), profile),
		Generated: narratives.Available(),
	})
}

func (s *Server) handleMatchReasoning(c *gin.Context) {
	req, ok := s.bindTrialRequest(c)
	if !ok {
		return
	}

	narratives := s.matcher.Narratives()
	patient := s.matcher.Profile(req.Record).Patient
	c.JSON(http.StatusOK, narrativeResponse{
		PatientID: patient.ID,
		NCTID:     req.Trial.NCTID,
		Text:      narratives.MatchReasoning(c.Request.Context(), patient, req.Trial),
		Generated: narratives.Available(),
	})
}

func (s *Server) handleReferral(c *gin.Context) {
	req, ok := s.bindTrialRequest(c)
	if !ok {
		return
	}

	narratives := s.matcher.Narratives()
	patient := s.matcher.Profile(req.Record).Patient
	letter := narratives.ReferralLetter(c.Request.Context(), patient, req.Trial)
	html, err := narratives.RenderHTML(letter)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, narrativeResponse{
		PatientID: patient.ID,
		NCTID:     req.Trial.NCTID,
		Text:      letter,
		HTML:      html,
		Generated: narratives.Available(),
	})
}

func (s *Server) bindTrialRequest(c *gin.Context) (trialRequest, bool) {
	var req trialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "request must contain a record and a trial", err)
		return req, false
	}
	if strings.TrimSpace(req.Trial.NCTID) == "" {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "trial.nctId is required", nil)
		return req, false
	}
	return req, true
}

// fail maps pipeline errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case domain.ErrCodeValidation:
		status = http.StatusUnprocessableEntity
	case domain.ErrCodeRegistryUnavailable:
		status = http.StatusServiceUnavailable
	case domain.ErrCodeNoResults:
		status = http.StatusNotFound
	case domain.ErrCodeRateLimit:
		status = http.StatusTooManyRequests
	}
	s.abort(c, status, code, err.Error(), err)
}

func (s *Server) abort(c *gin.Context, status int, code, message string, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)
	details := ""
	if err != nil {
		details = err.Error()
		s.logger.WithFields(logrus.Fields{
			"correlation_id": requestID,
			"code":           code,
		}).WithError(err).Debug("Request error")
	}
	if details == message {
		details = ""
	}
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, requestID))
}
