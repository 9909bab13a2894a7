package external

import (
	"context"
	"errors"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-trial-matcher/internal/domain"
)

// mockMessager implements AnthropicMessager for testing.
type mockMessager struct {
	response *anthropic.Message
	err      error
	params   anthropic.MessageNewParams
}

func (m *mockMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	m.params = params
	return m.response, m.err
}

func newMockMessage(texts ...string) *anthropic.Message {
	blocks := make([]anthropic.ContentBlockUnion, 0, len(texts))
	for _, text := range texts {
		blocks = append(blocks, anthropic.ContentBlockUnion{Type: "text", Text: text})
	}
	return &anthropic.Message{Content: blocks}
}

func TestAnthropicGeneratorGenerate(t *testing.T) {
	mock := &mockMessager{response: newMockMessage("Patient is a ", "strong candidate.")}
	gen := NewAnthropicGeneratorWithMessager(mock, domain.NarrativeConfig{Model: "test-model"}, quietLogger())

	text, err := gen.Generate(context.Background(), domain.NarrativeRequest{Prompt: "summarize", MaxTokens: 300, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "Patient is a strong candidate.", text)
	assert.Equal(t, anthropic.Model("test-model"), mock.params.Model)
	assert.Equal(t, int64(300), mock.params.MaxTokens)
}

func TestAnthropicGeneratorErrors(t *testing.T) {
	tests := []struct {
		name string
		mock *mockMessager
	}{
		{name: "transport error", mock: &mockMessager{err: errors.New("401 unauthorized")}},
		{name: "empty completion", mock: &mockMessager{response: newMockMessage("  ")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewAnthropicGeneratorWithMessager(tt.mock, domain.NarrativeConfig{}, quietLogger())
			_, err := gen.Generate(context.Background(), domain.NarrativeRequest{Prompt: "x"})
			assert.ErrorIs(t, err, domain.ErrNarrativeUnavailable)
		})
	}
}

func TestNewAnthropicGeneratorRequiresKey(t *testing.T) {
	_, err := NewAnthropicGenerator(domain.NarrativeConfig{}, quietLogger())
	assert.Error(t, err)
}
