package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	openai_tools "github.com/iamvkosarev/wellness-bot/pkg/openai-tools"
	"github.com/sashabaranov/go-openai"
)

type OpenAIUsecase struct {
	cfg      config.OpenAI
	decoding config.Decoding
	client   *openai.Client
}

func NewOpenAIUsecase(cfg config.OpenAI, decoding config.Decoding) *OpenAIUsecase {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientConfig.BaseURL = cfg.OpenAIBaseURL
	return &OpenAIUsecase{
		cfg:      cfg,
		decoding: decoding,
		client:   openai.NewClientWithConfig(clientConfig),
	}
}

// Complete sends one system + user turn and returns the trimmed reply. Errors
// are classified into the model.ErrModel* sentinels.
func (o *OpenAIUsecase) Complete(ctx context.Context, instructions string, userText string) (string, error) {
	prompt := o.boundPrompt(instructions, userText)

	req := openai.ChatCompletionRequest{
		Model: o.cfg.OpenAIModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: instructions,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:        o.decoding.MaxTokens,
		Temperature:      o.decoding.Temperature,
		PresencePenalty:  o.decoding.PresencePenalty,
		FrequencyPenalty: o.decoding.FrequencyPenalty,
		N:                1,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", model.ErrModelMalformed)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", model.ErrModelMalformed)
	}
	return content, nil
}

// boundPrompt truncates userText so that instructions and userText together
// fit cfg.MaxInputTokens. Token counting failures leave the text as is.
func (o *OpenAIUsecase) boundPrompt(instructions string, userText string) string {
	budget, err := openai_tools.UserBudget(instructions, o.cfg.OpenAIModel, o.cfg.MaxInputTokens)
	if err != nil {
		log.Printf("[openai] count token error: %v", err)
		return userText
	}
	prompt, trimmed, err := openai_tools.TruncateText(userText, o.cfg.OpenAIModel, budget)
	if err != nil {
		log.Printf("[openai] count token error: %v", err)
		return userText
	}
	if trimmed {
		log.Printf("[openai] user message trimmed to %d tokens", budget)
	}
	return prompt
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", model.ErrModelRateLimited, err)
		}
		return fmt.Errorf("%w: %w", model.ErrModelUnavailable, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", model.ErrModelRateLimited, err)
		}
		return fmt.Errorf("%w: %w", model.ErrModelUnavailable, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %w", model.ErrModelMalformed, err)
	}
	return fmt.Errorf("%w: %w", model.ErrModelUnavailable, err)
}
