package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
	"github.com/clinical-trial-matcher/internal/service"
)

// ImportRecordsParams defines parameters for the import_records tool
type ImportRecordsParams struct {
	CSV string `json:"csv" jsonschema:"comma-separated records; the first line holds the headers"`
}

// ProfilePatientParams defines parameters for the profile_patient tool
type ProfilePatientParams struct {
	Record          map[string]any `json:"record" jsonschema:"raw patient record keyed by column name"`
	IncludeAnalysis bool           `json:"include_analysis,omitempty" jsonschema:"also return a narrative clinical analysis"`
}

// MatchTrialsParams defines parameters for the match_trials tool
type MatchTrialsParams struct {
	Record           map[string]any `json:"record" jsonschema:"raw patient record keyed by column name"`
	Location         string         `json:"location,omitempty" jsonschema:"optional City, ST location overriding the record"`
	IncludeReasoning bool           `json:"include_reasoning,omitempty" jsonschema:"also explain each returned match"`
}

// ReferralLetterParams defines parameters for the referral_letter tool
type ReferralLetterParams struct {
	Record map[string]any `json:"record" jsonschema:"raw patient record keyed by column name"`
	Trial  domain.Trial   `json:"trial" jsonschema:"trial returned by match_trials"`
	Format string         `json:"format,omitempty" jsonschema:"markdown (default) or html"`
}

// ProfileResult is returned by profile_patient
type ProfileResult struct {
	domain.PatientProfile
	Analysis string `json:"analysis,omitempty"`
}

// MatchTrialsResult is returned by match_trials
type MatchTrialsResult struct {
	*domain.MatchResult
	Reasoning map[string]string `json:"reasoning,omitempty"`
}

type toolHandlers struct {
	matcher *service.MatchService
	logger  *logrus.Logger
}

func (h *toolHandlers) importRecords(_ context.Context, _ *mcp.CallToolRequest, params ImportRecordsParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.CSV) == "" {
		return errorResult(domain.ErrCodeInvalidInput, "csv is required"), nil, nil
	}
	profiles := h.matcher.ImportRecords(params.CSV)
	return jsonResult(map[string]any{"count": len(profiles), "profiles": profiles})
}

func (h *toolHandlers) profilePatient(ctx context.Context, _ *mcp.CallToolRequest, params ProfilePatientParams) (*mcp.CallToolResult, any, error) {
	if len(params.Record) == 0 {
		return errorResult(domain.ErrCodeInvalidInput, "record is required"), nil, nil
	}

	result := ProfileResult{PatientProfile: h.matcher.Profile(params.Record)}
	if params.IncludeAnalysis {
		result.Analysis = h.matcher.Narratives().ClinicalAnalysis(ctx, result.PatientProfile)
	}
	return jsonResult(result)
}

func (h *toolHandlers) matchTrials(ctx context.Context, _ *mcp.CallToolRequest, params MatchTrialsParams) (*mcp.CallToolResult, any, error) {
	if len(params.Record) == 0 {
		return errorResult(domain.ErrCodeInvalidInput, "record is required"), nil, nil
	}

	profile := h.matcher.Profile(params.Record)
	profile.Patient = profile.Patient.WithLocation(params.Location)

	match, err := h.matcher.MatchTrials(ctx, profile)
	if err != nil {
		h.logger.WithError(err).WithField("patient_id", profile.Patient.ID).Warn("match_trials failed")
		return errorResult(domain.ErrorCode(err), err.Error()), nil, nil
	}

	result := MatchTrialsResult{MatchResult: match}
	if params.IncludeReasoning {
		result.Reasoning = make(map[string]string, len(match.Trials))
		for _, trial := range match.Trials {
			result.Reasoning[trial.NCTID] = h.matcher.Narratives().MatchReasoning(ctx, profile.Patient, trial)
		}
	}
	return jsonResult(result)
}

func (h *toolHandlers) referralLetter(ctx context.Context, _ *mcp.CallToolRequest, params ReferralLetterParams) (*mcp.CallToolResult, any, error) {
	if len(params.Record) == 0 || strings.TrimSpace(params.Trial.NCTID) == "" {
		return errorResult(domain.ErrCodeInvalidInput, "record and trial.nctId are required"), nil, nil
	}

	narratives := h.matcher.Narratives()
	patient := h.matcher.Profile(params.Record).Patient
	letter := narratives.ReferralLetter(ctx, patient, params.Trial)

	switch strings.ToLower(params.Format) {
	case "", "markdown", "md":
		return textResult(letter), nil, nil
	case "html":
		html, err := narratives.RenderHTML(letter)
		if err != nil {
			return errorResult(domain.ErrCodeInternalServer, err.Error()), nil, nil
		}
		return textResult(html), nil, nil
	default:
		return errorResult(domain.ErrCodeInvalidInput, fmt.Sprintf("unsupported format %q", params.Format)), nil, nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return textResult(string(data)), nil, nil
}

func errorResult(code, message string) *mcp.CallToolResult {
	result := textResult(fmt.Sprintf("%s: %s", code, message))
	result.IsError = true
	return result
}
