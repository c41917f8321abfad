package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GeminiUsecase struct {
	cfg      config.Gemini
	decoding config.Decoding
	client   *genai.Client
}

func NewGeminiUsecase(ctx context.Context, cfg config.Gemini, decoding config.Decoding) (*GeminiUsecase, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiUsecase{
		cfg:      cfg,
		decoding: decoding,
		client:   client,
	}, nil
}

func (g *GeminiUsecase) Close() error {
	return g.client.Close()
}

func (g *GeminiUsecase) Complete(ctx context.Context, instructions string, userText string) (string, error) {
	generativeModel := g.client.GenerativeModel(g.cfg.Model)
	generativeModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instructions)},
	}
	generativeModel.SetMaxOutputTokens(int32(g.decoding.MaxTokens))
	generativeModel.SetTemperature(g.decoding.Temperature)

	resp, err := generativeModel.GenerateContent(ctx, genai.Text(userText))
	if err != nil {
		return "", classifyGeminiError(err)
	}
	content := strings.TrimSpace(geminiText(resp))
	if content == "" {
		return "", fmt.Errorf("%w: empty candidates", model.ErrModelMalformed)
	}
	return content, nil
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func classifyGeminiError(err error) error {
	var blockedErr *genai.BlockedError
	if errors.As(err, &blockedErr) {
		return fmt.Errorf("%w: %w", model.ErrModelMalformed, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", model.ErrModelRateLimited, err)
	}
	return fmt.Errorf("%w: %w", model.ErrModelUnavailable, err)
}
