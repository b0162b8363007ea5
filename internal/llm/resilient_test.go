package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLLMClient is a mock implementation of Client for testing
type MockLLMClient struct {
	GenerateJSONFunc    func(ctx context.Context, prompt string, tier ModelTier) (string, error)
	GenerateContentFunc func(ctx context.Context, prompt string, tier ModelTier) (string, error)
	calls               int
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	m.calls++
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, prompt, tier)
	}
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	m.calls++
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, tier)
	}
	return "{}", nil
}

func (m *MockLLMClient) GetModel(_ ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }

func TestResilientClient_PassesThrough(t *testing.T) {
	mock := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, tier ModelTier) (string, error) {
			assert.Equal(t, TierStandard, tier)
			return `{"echo": "` + prompt + `"}`, nil
		},
	}
	logger, _ := test.NewNullLogger()
	client := NewResilientClient(mock, DefaultResilienceConfig(), logger)

	out, err := client.GenerateJSON(context.Background(), "hi", TierStandard)
	require.NoError(t, err)
	assert.Equal(t, `{"echo": "hi"}`, out)
	assert.Equal(t, "mock-model", client.GetModel(TierLite))
	assert.NoError(t, client.Close())
}

func TestResilientClient_OpensAfterConsecutiveFailures(t *testing.T) {
	mock := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, ModelTier) (string, error) {
			return "", errors.New("503 unavailable")
		},
	}
	logger, hook := test.NewNullLogger()
	client := NewResilientClient(mock, ResilienceConfig{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	}, logger)

	for i := 0; i < 2; i++ {
		_, err := client.GenerateJSON(context.Background(), "p", TierStandard)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.GenerateJSON(context.Background(), "p", TierStandard)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, mock.calls, "open breaker must not reach the provider")

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestResilientClient_CancelledWaitDoesNotCallProvider(t *testing.T) {
	mock := &MockLLMClient{}
	logger, _ := test.NewNullLogger()
	client := NewResilientClient(mock, ResilienceConfig{RequestsPerSecond: 0.001, Burst: 1}, logger)

	// first call consumes the only token
	_, err := client.GenerateContent(context.Background(), "p", TierLite)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.GenerateContent(ctx, "p", TierLite)
	require.Error(t, err)
	assert.Equal(t, 1, mock.calls)
}

func TestExtractTextFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"a":`), genai.Text(`1}`)}},
		}},
	}
	text, err := extractTextFromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)

	_, err = extractTextFromResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	_, err = extractTextFromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}}}},
	})
	assert.Error(t, err)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), nil, "")
	assert.Error(t, err)

	_, err = NewClient(context.Background(), &Config{Provider: "other"}, "key")
	assert.Error(t, err)
}
