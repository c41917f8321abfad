package openai_tools

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultEncoding = "cl100k_base"
	minUserTokens   = 256
)

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return tkm, nil
	}
	tkm, err = tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("get encoding %s: %w", defaultEncoding, err)
	}
	return tkm, nil
}

// CountToken estimates prompt tokens for a chat completion request the way
// OpenAI bills gpt-3.5/gpt-4 chat messages.
func CountToken(messages []openai.ChatCompletionMessage, model string) (int, error) {
	tkm, err := encodingFor(model)
	if err != nil {
		return 0, err
	}

	const (
		tokensPerMessage = 3
		tokensPerName    = 1
	)
	numTokens := 0
	for _, message := range messages {
		numTokens += tokensPerMessage
		numTokens += len(tkm.Encode(message.Content, nil, nil))
		numTokens += len(tkm.Encode(message.Role, nil, nil))
		if message.Name != "" {
			numTokens += len(tkm.Encode(message.Name, nil, nil))
			numTokens += tokensPerName
		}
	}
	// every reply is primed with <|start|>assistant<|message|>
	numTokens += 3
	return numTokens, nil
}

// TruncateText cuts text to at most maxTokens tokens. It reports whether the
// text was shortened.
func TruncateText(text string, model string, maxTokens int) (string, bool, error) {
	if maxTokens <= 0 {
		return text, false, nil
	}
	tkm, err := encodingFor(model)
	if err != nil {
		return text, false, err
	}
	tokens := tkm.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false, nil
	}
	return trimInvalidTail(tkm.Decode(tokens[:maxTokens])), true, nil
}

// UserBudget returns how many tokens the user utterance may take so that the
// whole prompt stays within maxPromptTokens. It never goes below
// minUserTokens. A zero maxPromptTokens means no bound.
func UserBudget(instructions string, model string, maxPromptTokens int) (int, error) {
	if maxPromptTokens <= 0 {
		return 0, nil
	}
	overhead, err := CountToken(
		[]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructions},
			{Role: openai.ChatMessageRoleUser},
		}, model,
	)
	if err != nil {
		return 0, err
	}
	return max(maxPromptTokens-overhead, minUserTokens), nil
}

// trimInvalidTail drops the bytes of a rune that a token boundary cut in half.
func trimInvalidTail(s string) string {
	for len(s) > 0 && !utf8.ValidString(s) {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return strings.ToValidUTF8(s, "")
}
