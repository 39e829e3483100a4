package autopilot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswerJSON(t *testing.T) {
	text := "Here is what I found.\n```json\n" +
		`{"answers": [{"content": "Sessions live in session.go", "evidence": "session.go:32", "confidence": "HIGH"}]}` +
		"\n```"
	answer := parseAnswer(text)
	assert.Contains(t, answer, "Sessions live in session.go")
	assert.Contains(t, answer, "[evidence: session.go:32]")
	assert.Contains(t, answer, "[confidence: HIGH]")
}

func TestParseAnswerBareJSON(t *testing.T) {
	text := `{"answers": [{"content": "No CI configuration exists", "confidence": "MEDIUM"}]}`
	answer := parseAnswer(text)
	assert.Contains(t, answer, "No CI configuration exists")
}

func TestParseAnswerStringItems(t *testing.T) {
	text := `{"answers": ["use the existing retry package"]}`
	assert.Equal(t, "use the existing retry package", parseAnswer(text))
}

func TestParseAnswerMarkerFallback(t *testing.T) {
	text := "=== ANSWER 1 ===\nThe config loader already handles env overrides.\n"
	assert.Equal(t, "The config loader already handles env overrides.", parseAnswer(text))
}

func TestParseAnswerNumberedLineFallback(t *testing.T) {
	assert.Equal(t, "yes, the helper exists", parseAnswer("1. yes, the helper exists"))
	assert.Equal(t, "prefer the flat layout", parseAnswer("- prefer the flat layout"))
}

func TestParseAnswerPlainTextFallback(t *testing.T) {
	assert.Equal(t, "just use the defaults", parseAnswer("  just use the defaults  "))
	assert.Equal(t, "(no answer)", parseAnswer("   "))
}

func TestAgentQuestionResolver(t *testing.T) {
	runtime := newFakeRuntime(turnWithResult(&Result{
		Text: "```json\n" +
			`{"answers": [{"content": "Use the retry package", "confidence": "HIGH"}]}` +
			"\n```",
	}))
	resolver, err := NewAgentQuestionResolver(AgentQuestionResolverOptions{Runtime: runtime})
	require.NoError(t, err)

	answer, err := resolver.Resolve(context.Background(), Question{
		Text:    "where should backoff logic live?",
		Context: "Objective: add retry support",
	})
	require.NoError(t, err)
	assert.Contains(t, answer, "Use the retry package")

	// The answering session is read-only and single turn.
	require.Equal(t, 1, runtime.callCount())
	assert.Equal(t, readOnlyTools, runtime.requests[0].AllowedTools)
	assert.Empty(t, runtime.requests[0].SessionID)
	assert.Contains(t, runtime.requests[0].Prompt, "where should backoff logic live?")

	// The exchange lands in the audit log.
	pairs := resolver.Answers()
	require.Len(t, pairs, 1)
	assert.Equal(t, "where should backoff logic live?", pairs[0].Question)
	assert.Contains(t, pairs[0].Answer, "Use the retry package")
}

func TestAgentQuestionResolverRequiresRuntime(t *testing.T) {
	_, err := NewAgentQuestionResolver(AgentQuestionResolverOptions{})
	require.Error(t, err)
}

func TestStaticQuestionResolver(t *testing.T) {
	resolver := &StaticQuestionResolver{Answer: "always yes"}
	answer, err := resolver.Resolve(context.Background(), Question{Text: "anything?"})
	require.NoError(t, err)
	assert.Equal(t, "always yes", answer)

	fallback := &StaticQuestionResolver{}
	answer, err = fallback.Resolve(context.Background(), Question{Text: "anything?"})
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
}
