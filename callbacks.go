package autopilot

import (
	"context"
	"time"
)

// WorkflowCallbacks defines the callback interface for workflow execution events
type WorkflowCallbacks interface {
	// Workflow-level callbacks
	BeforeWorkflowExecution(ctx context.Context, event *WorkflowEvent)
	AfterWorkflowExecution(ctx context.Context, event *WorkflowEvent)

	// Stage-level callbacks
	BeforeStageExecution(ctx context.Context, event *StageEvent)
	AfterStageExecution(ctx context.Context, event *StageEvent)

	// Invoked when a blocking question raised by a stage agent is answered
	OnQuestionResolved(ctx context.Context, event *QuestionEvent)
}

// WorkflowEvent provides context for workflow-level execution events
type WorkflowEvent struct {
	WorkflowID string
	Objective  string
	Status     WorkflowStatus
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	CostUSD    float64
	Error      error
}

// StageEvent provides context for stage-level execution events
type StageEvent struct {
	WorkflowID string
	Stage      Stage
	Attempt    int
	SessionID  string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Result     *StageResult
	Error      error
}

// QuestionEvent provides context for a resolved stage question
type QuestionEvent struct {
	WorkflowID string
	Stage      Stage
	Question   string
	Answer     string
}

// BaseWorkflowCallbacks provides a default implementation that does nothing
type BaseWorkflowCallbacks struct{}

func (n *BaseWorkflowCallbacks) BeforeWorkflowExecution(ctx context.Context, event *WorkflowEvent) {
	// noop
}

func (n *BaseWorkflowCallbacks) AfterWorkflowExecution(ctx context.Context, event *WorkflowEvent) {
	// noop
}

func (n *BaseWorkflowCallbacks) BeforeStageExecution(ctx context.Context, event *StageEvent) {
	// noop
}

func (n *BaseWorkflowCallbacks) AfterStageExecution(ctx context.Context, event *StageEvent) {
	// noop
}

func (n *BaseWorkflowCallbacks) OnQuestionResolved(ctx context.Context, event *QuestionEvent) {
	// noop
}

// NewBaseWorkflowCallbacks creates a new no-op callbacks implementation.
// Embed this in your own callbacks to get a default implementation that does nothing.
func NewBaseWorkflowCallbacks() WorkflowCallbacks {
	return &BaseWorkflowCallbacks{}
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []WorkflowCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...WorkflowCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback WorkflowCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeWorkflowExecution(ctx context.Context, event *WorkflowEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeWorkflowExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterWorkflowExecution(ctx context.Context, event *WorkflowEvent) {
	for _, callback := range c.callbacks {
		callback.AfterWorkflowExecution(ctx, event)
	}
}

func (c *CallbackChain) BeforeStageExecution(ctx context.Context, event *StageEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeStageExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterStageExecution(ctx context.Context, event *StageEvent) {
	for _, callback := range c.callbacks {
		callback.AfterStageExecution(ctx, event)
	}
}

func (c *CallbackChain) OnQuestionResolved(ctx context.Context, event *QuestionEvent) {
	for _, callback := range c.callbacks {
		callback.OnQuestionResolved(ctx, event)
	}
}
