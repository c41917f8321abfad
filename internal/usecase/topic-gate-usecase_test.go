package usecase

import (
	"strings"
	"testing"

	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/stretchr/testify/assert"
)

const testRedirect = "redirect"

func TestTopicGateShortMessagesAreInScope(t *testing.T) {
	gate := NewTopicGate(config.Gate{}, testRedirect)

	assert.True(t, gate.IsInScope("hi"))
	assert.True(t, gate.IsInScope(strings.Repeat("x", 49)))
	assert.False(t, gate.IsInScope(strings.Repeat("x", 50)))
}

func TestTopicGateKeywordMatching(t *testing.T) {
	gate := NewTopicGate(config.Gate{}, testRedirect)

	assert.True(t, gate.IsInScope("I have been feeling overwhelmed by work deadlines lately, any tips?"))
	assert.True(t, gate.IsInScope("WHAT CAN I DO ABOUT MY ANXIETY BEFORE A BIG PRESENTATION TOMORROW"))
	assert.False(t, gate.IsInScope("What's the capital of France and how many people live there today?"))
}

func TestTopicGateShortThresholdCountsRunes(t *testing.T) {
	gate := NewTopicGate(config.Gate{}, testRedirect)

	assert.True(t, gate.IsInScope(strings.Repeat("й", 49)))
}

func TestTopicGateFilterResponse(t *testing.T) {
	gate := NewTopicGate(config.Gate{}, testRedirect)

	offTopic := "What's the capital of France and how many people live there today?"
	assert.Equal(t, testRedirect, gate.FilterResponse(offTopic, "Paris"))
	assert.Equal(t, "Paris", gate.FilterResponse("short question", "Paris"))
	assert.Equal(t, "breathe", gate.FilterResponse("I feel stressed about everything going on at home right now", "breathe"))
	assert.Equal(t, testRedirect, gate.RedirectMessage())
}

func TestTopicGateCustomKeywords(t *testing.T) {
	gate := NewTopicGate(config.Gate{ShortMessageThreshold: 5, Keywords: []string{" Yoga "}}, testRedirect)

	assert.True(t, gate.IsInScope("hey"))
	assert.True(t, gate.IsInScope("which yoga pose helps the back"))
	assert.False(t, gate.IsInScope("I feel stressed about everything"))
}
