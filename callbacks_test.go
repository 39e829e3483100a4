package autopilot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCallbacks captures the order of lifecycle events it receives.
type recordingCallbacks struct {
	BaseWorkflowCallbacks
	mutex  sync.Mutex
	events []string
	last   *WorkflowEvent
}

func (r *recordingCallbacks) record(event string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingCallbacks) recorded() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingCallbacks) BeforeWorkflowExecution(ctx context.Context, event *WorkflowEvent) {
	r.record("workflow:before")
}

func (r *recordingCallbacks) AfterWorkflowExecution(ctx context.Context, event *WorkflowEvent) {
	r.mutex.Lock()
	r.last = event
	r.mutex.Unlock()
	r.record("workflow:after")
}

func (r *recordingCallbacks) BeforeStageExecution(ctx context.Context, event *StageEvent) {
	r.record(fmt.Sprintf("stage:before:%s", event.Stage))
}

func (r *recordingCallbacks) AfterStageExecution(ctx context.Context, event *StageEvent) {
	r.record(fmt.Sprintf("stage:after:%s", event.Stage))
}

func (r *recordingCallbacks) OnQuestionResolved(ctx context.Context, event *QuestionEvent) {
	r.record(fmt.Sprintf("question:%s", event.Question))
}

func TestCallbackChainDispatchesToEveryMember(t *testing.T) {
	first := &recordingCallbacks{}
	second := &recordingCallbacks{}
	chain := NewCallbackChain(first)
	chain.Add(second)

	ctx := context.Background()
	chain.BeforeWorkflowExecution(ctx, &WorkflowEvent{WorkflowID: "wf_chain"})
	chain.BeforeStageExecution(ctx, &StageEvent{Stage: StageClarify})
	chain.OnQuestionResolved(ctx, &QuestionEvent{Question: "which db?"})
	chain.AfterStageExecution(ctx, &StageEvent{Stage: StageClarify})
	chain.AfterWorkflowExecution(ctx, &WorkflowEvent{WorkflowID: "wf_chain"})

	want := []string{
		"workflow:before",
		"stage:before:clarify",
		"question:which db?",
		"stage:after:clarify",
		"workflow:after",
	}
	assert.Equal(t, want, first.recorded())
	assert.Equal(t, want, second.recorded())
}

func TestWorkflowCallbacksReceiveLifecycleEvents(t *testing.T) {
	runtime := newFakeRuntime(
		completedTurn("clear"),
		turnWithResult(&Result{
			Text: "```json\n{\"status\": \"early_exit\", \"reason\": \"already supported\"}\n```",
		}),
	)
	recorder := &recordingCallbacks{}
	orchestrator, err := NewOrchestrator(OrchestratorOptions{
		Runtime:      runtime,
		Resolver:     &scriptedResolver{},
		Checkpointer: newMemoryCheckpointer(),
		Callbacks:    NewCallbackChain(NewBaseWorkflowCallbacks(), recorder),
		Config: Config{
			WorkingDir: t.TempDir(),
			BaseWait:   time.Millisecond,
		},
	})
	require.NoError(t, err)

	_, err = orchestrator.Run(context.Background(), "add retry support")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"workflow:before",
		"stage:before:clarify",
		"stage:after:clarify",
		"stage:before:research",
		"stage:after:research",
		"workflow:after",
	}, recorder.recorded())

	require.NotNil(t, recorder.last)
	assert.Equal(t, WorkflowStatusEarlyExit, recorder.last.Status)
	assert.NoError(t, recorder.last.Error)
}
