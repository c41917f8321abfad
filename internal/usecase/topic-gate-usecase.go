package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/iamvkosarev/wellness-bot/config"
)

const defaultShortMessageThreshold = 50

var DefaultWellnessKeywords = []string{
	"stress", "anxiety", "worry", "feel", "feeling", "emotion", "sad", "happy",
	"depression", "mental", "health", "wellness", "mindfulness", "meditation",
	"breathe", "breathing", "relax", "calm", "peace", "positive", "negative",
	"motivation", "tired", "energy", "sleep", "rest", "overwhelmed", "pressure",
	"support", "help", "better", "improve", "cope", "manage", "handle",
	"grateful", "gratitude", "thankful", "appreciate", "love", "care", "hope",
	"good", "bad", "upset", "angry", "frustrated", "lonely", "confused",
	"nervous", "scared", "afraid", "comfort", "reassurance", "advice",
}

// TopicGate decides whether a user utterance belongs to the wellness domain.
// Matching is plain substring search, so "feel" also matches "feelings".
type TopicGate struct {
	keywords       []string
	shortThreshold int
	redirect       string
}

func NewTopicGate(cfg config.Gate, redirect string) *TopicGate {
	source := cfg.Keywords
	if len(source) == 0 {
		source = DefaultWellnessKeywords
	}
	keywords := make([]string, 0, len(source))
	for _, keyword := range source {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	threshold := cfg.ShortMessageThreshold
	if threshold <= 0 {
		threshold = defaultShortMessageThreshold
	}
	return &TopicGate{
		keywords:       keywords,
		shortThreshold: threshold,
		redirect:       redirect,
	}
}

// IsInScope treats short messages as in scope so greetings pass through.
func (g *TopicGate) IsInScope(text string) bool {
	if utf8.RuneCountInString(text) < g.shortThreshold {
		return true
	}
	lower := strings.ToLower(text)
	for _, keyword := range g.keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func (g *TopicGate) FilterResponse(userText, rawReply string) string {
	if !g.IsInScope(userText) {
		return g.redirect
	}
	return rawReply
}

func (g *TopicGate) RedirectMessage() string {
	return g.redirect
}
