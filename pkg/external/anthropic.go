package external

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
)

// DefaultNarrativeModel is used when no model is configured.
const DefaultNarrativeModel = "claude-sonnet-4-5"

const narrativeSystemPrompt = "You are a clinical research coordinator assistant. Write concise, factual prose for clinicians. Do not invent patient data."

// AnthropicMessager is the subset of the Anthropic client used here.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicGenerator implements domain.NarrativeGenerator with the Anthropic
// Messages API.
type AnthropicGenerator struct {
	messages  AnthropicMessager
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *logrus.Logger
}

// NewAnthropicGenerator creates a generator from config. It fails when no API
// key is configured so callers can run without a generator.
func NewAnthropicGenerator(config domain.NarrativeConfig, logger *logrus.Logger) (*AnthropicGenerator, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, errors.New("narrative API key not configured")
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicGeneratorWithMessager(&c.Messages, config, logger), nil
}

// NewAnthropicGeneratorWithMessager creates a generator around an existing messager.
func NewAnthropicGeneratorWithMessager(messages AnthropicMessager, config domain.NarrativeConfig, logger *logrus.Logger) *AnthropicGenerator {
	if logger == nil {
		logger = logrus.New()
	}
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = DefaultNarrativeModel
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AnthropicGenerator{
		messages:  messages,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}
}

// Generate sends one completion request and returns the concatenated text
// blocks. Any failure wraps domain.ErrNarrativeUnavailable.
func (g *AnthropicGenerator) Generate(ctx context.Context, req domain.NarrativeRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   int64(maxTokens),
		System:      []anthropic.TextBlockParam{{Text: narrativeSystemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrNarrativeUnavailable, err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrNarrativeUnavailable)
	}

	g.logger.WithFields(logrus.Fields{
		"model":      g.model,
		"elapsed_ms": time.Since(start).Milliseconds(),
		"chars":      len(text),
	}).Debug("Narrative generated")
	return text, nil
}
