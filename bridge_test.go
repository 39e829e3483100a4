package autopilot

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResolver answers questions from a fixed list.
type scriptedResolver struct {
	answers []string
	calls   int
}

func (r *scriptedResolver) Resolve(ctx context.Context, question Question) (string, error) {
	r.calls++
	if len(r.answers) == 0 {
		return "proceed as you see fit", nil
	}
	answer := r.answers[0]
	r.answers = r.answers[1:]
	return answer, nil
}

func newTestBridge(t *testing.T, runtime *fakeRuntime, opts BridgeOptions) *Bridge {
	t.Helper()
	opts.Runtime = runtime
	if opts.Resolver == nil {
		opts.Resolver = &scriptedResolver{}
	}
	bridge, err := NewBridge(opts)
	require.NoError(t, err)
	return bridge
}

func TestCallStageAggregatesResult(t *testing.T) {
	runtime := newFakeRuntime(turnWithResult(&Result{
		Text: "Research complete.\n```json\n" +
			`{"status": "complete", "doc_path": "docs/research/feature.md", "summary": "found three call sites"}` +
			"\n```",
		CostUSD: 0.42,
	}))
	bridge := newTestBridge(t, runtime, BridgeOptions{})

	result, err := bridge.CallStage(context.Background(), StageCall{
		Stage: StageResearch,
		Vars:  map[string]any{"objective": "add retry support"},
	})
	require.NoError(t, err)
	assert.Equal(t, StageResearch, result.Stage)
	assert.Equal(t, StageSuccess, result.Status)
	assert.Equal(t, "docs/research/feature.md", result.OutputDocPath)
	assert.Equal(t, "found three call sites", result.Summary)
	assert.Equal(t, "sess_1", result.SessionID)
	assert.InDelta(t, 0.42, result.CostUSD, 0.0001)
	assert.Equal(t, 0, result.Questions)

	require.Equal(t, 1, runtime.callCount())
	assert.Contains(t, runtime.requests[0].Prompt, "add retry support")
	assert.Equal(t, ToolsForStage(StageResearch), runtime.requests[0].AllowedTools)
}

func TestCallStageQuestionLoopResumesSameSession(t *testing.T) {
	questionTurn := func(q string) fakeTurn {
		return turnWithResult(&Result{
			Text:    fmt.Sprintf("```json\n{\"status\": \"question\", \"question\": %q}\n```", q),
			CostUSD: 0.1,
		})
	}
	runtime := newFakeRuntime(
		questionTurn("which package should own the retry helper?"),
		questionTurn("should backoff be capped?"),
		questionTurn("is jitter required?"),
		turnWithResult(&Result{
			Text:    "```json\n{\"status\": \"complete\", \"doc_path\": \"docs/research/retry.md\"}\n```",
			CostUSD: 0.1,
		}),
	)
	resolver := &scriptedResolver{answers: []string{"the retry package", "yes, at 30s", "yes"}}
	bridge := newTestBridge(t, runtime, BridgeOptions{Resolver: resolver, MaxQuestions: 3})

	result, err := bridge.CallStage(context.Background(), StageCall{
		Stage: StageResearch,
		Vars:  map[string]any{"objective": "add retry support"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resolver.calls)
	assert.Equal(t, 3, result.Questions)
	assert.InDelta(t, 0.4, result.CostUSD, 0.0001)

	// Every resumption reuses the session minted by the first turn.
	require.Equal(t, 4, runtime.callCount())
	assert.Empty(t, runtime.requests[0].SessionID)
	for _, req := range runtime.requests[1:] {
		assert.Equal(t, "sess_1", req.SessionID)
	}
	assert.Contains(t, runtime.requests[1].Prompt, "the retry package")
}

func TestCallStageQuestionBudgetExhausted(t *testing.T) {
	questionTurn := turnWithResult(&Result{
		Text: "```json\n{\"status\": \"question\", \"question\": \"which database?\"}\n```",
	})
	runtime := newFakeRuntime(questionTurn, questionTurn)
	resolver := &scriptedResolver{}
	bridge := newTestBridge(t, runtime, BridgeOptions{Resolver: resolver, MaxQuestions: 1})

	_, err := bridge.CallStage(context.Background(), StageCall{
		Stage: StageResearch,
		Vars:  map[string]any{"objective": "migrate storage"},
	})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeUnresolvedAmbiguity))
	assert.Contains(t, err.Error(), "which database?")
	assert.Equal(t, 1, resolver.calls)
}

func TestCallStageHookDenialBecomesToolResult(t *testing.T) {
	runtime := newFakeRuntime(fakeTurn{
		events: []*Event{
			{Type: EventToolCall, ToolCall: &ToolCall{
				ID:    "tool_1",
				Name:  "Bash",
				Input: map[string]any{"command": "rm -rf /"},
			}},
			{Type: EventToolResult, ToolResult: &ToolResult{
				ToolID:  "tool_1",
				Content: "removed everything",
			}},
		},
		result: &Result{
			Text: "```json\n{\"status\": \"complete\", \"summary\": \"done\"}\n```",
		},
	})
	bridge := newTestBridge(t, runtime, BridgeOptions{})

	_, err := bridge.CallStage(context.Background(), StageCall{
		Stage: StageImplement,
		Vars:  map[string]any{"objective": "cleanup", "plan_doc": "docs/plans/x.md"},
	})
	require.NoError(t, err)

	observed := runtime.observedResults()
	require.Len(t, observed, 1)
	assert.True(t, observed[0].IsError)
	assert.NotEqual(t, "removed everything", observed[0].Content)
	assert.Contains(t, observed[0].Content, "recursive or forced deletion")
}

func TestCallStageEarlyExitOnlyFromResearch(t *testing.T) {
	earlyExit := func() fakeTurn {
		return turnWithResult(&Result{
			Text: "```json\n{\"status\": \"early_exit\", \"reason\": \"feature already exists\"}\n```",
		})
	}

	t.Run("legal from research", func(t *testing.T) {
		bridge := newTestBridge(t, newFakeRuntime(earlyExit()), BridgeOptions{})
		result, err := bridge.CallStage(context.Background(), StageCall{
			Stage: StageResearch,
			Vars:  map[string]any{"objective": "add caching"},
		})
		require.NoError(t, err)
		assert.Equal(t, StageEarlyExit, result.Status)
		assert.Equal(t, "feature already exists", result.Summary)
	})

	t.Run("illegal from plan", func(t *testing.T) {
		bridge := newTestBridge(t, newFakeRuntime(earlyExit()), BridgeOptions{})
		_, err := bridge.CallStage(context.Background(), StageCall{
			Stage: StagePlan,
			Vars:  map[string]any{"objective": "add caching", "research_doc": "docs/research/x.md"},
		})
		require.Error(t, err)
		assert.True(t, IsErrorType(err, ErrorTypeValidation))
	})
}

func TestCallStageSessionErrorIsTransient(t *testing.T) {
	runtime := newFakeRuntime(turnWithResult(&Result{
		Text:    "upstream overloaded",
		IsError: true,
	}))
	bridge := newTestBridge(t, runtime, BridgeOptions{})

	_, err := bridge.CallStage(context.Background(), StageCall{
		Stage: StageResearch,
		Vars:  map[string]any{"objective": "anything"},
	})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeTransient))
}

func TestCallStagePlainTextResultCompletes(t *testing.T) {
	runtime := newFakeRuntime(turnWithResult(&Result{
		Text: "Wrote findings to docs/research/notes.md and finished up.",
	}))
	bridge := newTestBridge(t, runtime, BridgeOptions{})

	result, err := bridge.CallStage(context.Background(), StageCall{
		Stage: StageResearch,
		Vars:  map[string]any{"objective": "anything"},
	})
	require.NoError(t, err)
	assert.Equal(t, StageSuccess, result.Status)
	assert.Equal(t, "docs/research/notes.md", result.OutputDocPath)
}

func TestCallStageUnknownStage(t *testing.T) {
	bridge := newTestBridge(t, newFakeRuntime(), BridgeOptions{})
	_, err := bridge.CallStage(context.Background(), StageCall{Stage: "deploy"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeValidation))
}
