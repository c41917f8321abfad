package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openAIRequest struct {
	Model            string  `json:"model"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float32 `json:"temperature"`
	PresencePenalty  float32 `json:"presence_penalty"`
	FrequencyPenalty float32 `json:"frequency_penalty"`
	Messages         []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIUsecase {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIUsecase(
		config.OpenAI{
			OpenAIAPIKey:  "sk-test",
			OpenAIModel:   "gpt-3.5-turbo",
			OpenAIBaseURL: srv.URL + "/v1",
		},
		config.Decoding{
			MaxTokens:        150,
			Temperature:      0.7,
			PresencePenalty:  0.6,
			FrequencyPenalty: 0.3,
		},
	)
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(
		[]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":` + content + `},"finish_reason":"stop"}],` +
			`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`),
	)
}

func TestOpenAICompleteSendsFixedDecodingParams(t *testing.T) {
	var got openAIRequest
	var auth string
	source := newTestOpenAI(
		t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			auth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeCompletion(w, `"  Let's take a slow breath together 🧘  "`)
		},
	)

	reply, err := source.Complete(context.Background(), "be kind", "I feel anxious")
	require.NoError(t, err)

	assert.Equal(t, "Let's take a slow breath together 🧘", reply)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.0001)
	assert.InDelta(t, 0.6, got.PresencePenalty, 0.0001)
	assert.InDelta(t, 0.3, got.FrequencyPenalty, 0.0001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be kind", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "I feel anxious", got.Messages[1].Content)
}

func TestOpenAICompleteClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
			},
			want: model.ErrModelRateLimited,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			},
			want: model.ErrModelUnavailable,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`))
			},
			want: model.ErrModelMalformed,
		},
		{
			name: "blank content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeCompletion(w, `"   "`)
			},
			want: model.ErrModelMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				source := newTestOpenAI(t, tt.handler)

				reply, err := source.Complete(context.Background(), "be kind", "hello")
				assert.Empty(t, reply)
				assert.ErrorIs(t, err, tt.want)
			},
		)
	}
}

func TestOpenAICompleteUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	source := NewOpenAIUsecase(config.OpenAI{OpenAIModel: "gpt-3.5-turbo", OpenAIBaseURL: url + "/v1"}, config.Decoding{})

	_, err := source.Complete(context.Background(), "be kind", "hello")
	assert.ErrorIs(t, err, model.ErrModelUnavailable)
}
