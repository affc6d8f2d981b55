package service

import (
	"strings"
	"testing"

	"comerse-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposePrompt_Deterministic(t *testing.T) {
	profile := model.Profile{Company: "Acme Outdoor", Industry: "ecommerce", ToneOfVoice: "professional"}
	chunks := []model.RetrievedChunk{
		{Content: "Product: Trail Boots\nPrice: 129.99"},
		{Content: "Q: Do you ship internationally?\nA: Yes, to 40 countries."},
	}

	first := ComposePrompt(profile, chunks)
	second := ComposePrompt(profile, chunks)
	assert.Equal(t, first, second)
}

func TestComposePrompt_ProfileFields(t *testing.T) {
	profile := model.Profile{Company: "Acme Outdoor", Industry: "outdoor gear", ToneOfVoice: "casual"}

	prompt := ComposePrompt(profile, nil)

	assert.Contains(t, prompt, "You are an AI customer support assistant for Acme Outdoor.")
	assert.Contains(t, prompt, "- Company: Acme Outdoor")
	assert.Contains(t, prompt, "- Industry: outdoor gear")
	assert.Contains(t, prompt, "Be helpful, casual, and knowledgeable.")
}

func TestComposePrompt_DefaultTone(t *testing.T) {
	prompt := ComposePrompt(model.Profile{Company: "Acme"}, nil)
	assert.Contains(t, prompt, "Be helpful, friendly, and knowledgeable.")
}

func TestComposePrompt_NoKnowledgeSectionWhenEmpty(t *testing.T) {
	prompt := ComposePrompt(model.Profile{Company: "Acme"}, nil)
	assert.NotContains(t, prompt, "Relevant information from your knowledge base")

	prompt = ComposePrompt(model.Profile{Company: "Acme"}, []model.RetrievedChunk{})
	assert.NotContains(t, prompt, "Relevant information from your knowledge base")
}

func TestComposePrompt_ChunksInRankOrder(t *testing.T) {
	chunks := []model.RetrievedChunk{
		{Content: "first chunk", Score: 0.9},
		{Content: "second chunk", Score: 0.5},
	}

	prompt := ComposePrompt(model.Profile{Company: "Acme"}, chunks)

	require.Contains(t, prompt, "Relevant information from your knowledge base:")
	firstIdx := strings.Index(prompt, "first chunk")
	secondIdx := strings.Index(prompt, "second chunk")
	require.NotEqual(t, -1, firstIdx)
	require.NotEqual(t, -1, secondIdx)
	assert.Less(t, firstIdx, secondIdx)
}
