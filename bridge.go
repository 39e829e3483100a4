package autopilot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/deepnoodle-ai/autopilot/hooks"
	"github.com/deepnoodle-ai/autopilot/prompt"
)

// StageCall describes one stage invocation.
type StageCall struct {
	Stage      Stage
	WorkflowID string

	// Vars are the prompt template variables: objective, research_doc,
	// plan_doc, feedback.
	Vars map[string]any
}

// Bridge converts one synchronous stage call into an agent session: it
// renders the stage prompt, consumes the session's event stream, routes tool
// invocations through the hook engine, resolves clarifying questions, and
// aggregates everything into a single StageResult.
type Bridge struct {
	runtime      AgentRuntime
	hooks        *hooks.Engine
	resolver     QuestionResolver
	prompts      *prompt.Library
	workingDir   string
	maxQuestions int
	logger       *slog.Logger
	callbacks    WorkflowCallbacks
}

// BridgeOptions configures a Bridge. Runtime is required; everything else has
// a working default.
type BridgeOptions struct {
	Runtime      AgentRuntime
	Hooks        *hooks.Engine
	Resolver     QuestionResolver
	Prompts      *prompt.Library
	WorkingDir   string
	MaxQuestions int
	Logger       *slog.Logger
	Callbacks    WorkflowCallbacks
}

func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Runtime == nil {
		return nil, fmt.Errorf("agent runtime is required")
	}
	if opts.Hooks == nil {
		opts.Hooks = hooks.NewEngine(hooks.EngineOptions{})
	}
	if opts.Resolver == nil {
		resolver, err := NewAgentQuestionResolver(AgentQuestionResolverOptions{
			Runtime:    opts.Runtime,
			WorkingDir: opts.WorkingDir,
			Logger:     opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		opts.Resolver = resolver
	}
	if opts.Prompts == nil {
		library, err := prompt.DefaultLibrary()
		if err != nil {
			return nil, err
		}
		opts.Prompts = library
	}
	if opts.MaxQuestions == 0 {
		opts.MaxQuestions = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewBaseWorkflowCallbacks()
	}
	return &Bridge{
		runtime:      opts.Runtime,
		hooks:        opts.Hooks,
		resolver:     opts.Resolver,
		prompts:      opts.Prompts,
		workingDir:   opts.WorkingDir,
		maxQuestions: opts.MaxQuestions,
		logger:       opts.Logger,
		callbacks:    opts.Callbacks,
	}, nil
}

// PreToolUse implements ToolInterceptor by delegating to the hook engine.
func (b *Bridge) PreToolUse(ctx context.Context, call *ToolCall) hooks.Decision {
	return b.hooks.PreToolUse(ctx, call.Name, call.Input)
}

// PostToolUse implements ToolInterceptor by delegating to the hook engine.
// Checker failures come back as feedback text; the tool's effect stands.
func (b *Bridge) PostToolUse(ctx context.Context, call *ToolCall, result *ToolResult) string {
	if result != nil && result.IsError {
		return ""
	}
	return b.hooks.PostToolUse(ctx, call.Name, call.Input)
}

// CallStage runs one stage to its terminal outcome. Exactly one agent session
// is live at a time; clarifying questions resume the same session with the
// resolver's answer until the question budget is exhausted.
func (b *Bridge) CallStage(ctx context.Context, call StageCall) (*StageResult, error) {
	if !ValidStage(call.Stage) {
		return nil, NewValidationError(call.Stage, "stage", "unknown stage")
	}

	promptText, err := b.prompts.Render(ctx, string(call.Stage), call.Vars)
	if err != nil {
		return nil, NewValidationError(call.Stage, "prompt", err.Error())
	}

	var (
		sessionID string
		totalCost float64
		questions int
	)

	for {
		result, err := b.runSession(ctx, SessionRequest{
			Prompt:         promptText,
			SessionID:      sessionID,
			AllowedTools:   ToolsForStage(call.Stage),
			PermissionMode: PermissionAcceptEdits,
			WorkingDir:     b.workingDir,
			Interceptor:    b,
		})
		if err != nil {
			return nil, ClassifyError(call.Stage, err)
		}
		sessionID = result.SessionID
		totalCost += result.CostUSD

		outcome, err := ParseOutcome(result)
		if err != nil {
			return nil, NewTransientError(call.Stage, fmt.Errorf("unparseable stage result: %w", err))
		}

		switch outcome.Kind {
		case OutcomeQuestion:
			if questions >= b.maxQuestions {
				return nil, NewAmbiguityError(call.Stage, outcome.Question)
			}
			questions++
			answer, err := b.resolver.Resolve(ctx, Question{
				Text:    outcome.Question,
				Context: contextForQuestion(call),
			})
			if err != nil {
				return nil, ClassifyError(call.Stage, fmt.Errorf("failed to resolve question: %w", err))
			}
			b.callbacks.OnQuestionResolved(ctx, &QuestionEvent{
				WorkflowID: call.WorkflowID,
				Stage:      call.Stage,
				Question:   outcome.Question,
				Answer:     answer,
			})
			b.logger.Info("clarifying question resolved",
				"stage", call.Stage,
				"question", outcome.Question)
			promptText = fmt.Sprintf("Answer to your question:\n\n%s\n\nContinue with the stage using this answer.", answer)

		case OutcomeEarlyExit:
			if call.Stage != StageResearch {
				return nil, NewValidationError(call.Stage, "status",
					fmt.Sprintf("early exit is only legal from the %s stage", StageResearch))
			}
			return &StageResult{
				Stage:     call.Stage,
				Status:    StageEarlyExit,
				SessionID: sessionID,
				Summary:   outcome.Reason,
				CostUSD:   totalCost,
				Questions: questions,
			}, nil

		case OutcomeCompleted:
			return &StageResult{
				Stage:         call.Stage,
				Status:        StageSuccess,
				OutputDocPath: outcome.DocPath,
				SessionID:     sessionID,
				Summary:       outcome.Summary,
				Feedback:      outcome.Feedback,
				CostUSD:       totalCost,
				Questions:     questions,
			}, nil

		default:
			return nil, NewTransientError(call.Stage,
				fmt.Errorf("unexpected outcome kind %q", outcome.Kind))
		}
	}
}

// runSession opens one session turn and drains its event stream to the final
// result. On cancellation the stream is closed before the error propagates.
func (b *Bridge) runSession(ctx context.Context, req SessionRequest) (*Result, error) {
	stream, err := b.runtime.OpenSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent session: %w", err)
	}
	defer stream.Close()

	var final *Result
	for {
		event, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			stream.Close()
			return nil, err
		}
		switch event.Type {
		case EventText:
			b.logger.Debug("agent text", "text", truncate(event.Text, 200))
		case EventToolCall:
			if event.ToolCall != nil {
				b.logger.Debug("tool call", "tool", event.ToolCall.Name)
			}
		case EventToolResult:
			if event.ToolResult != nil && event.ToolResult.IsError {
				b.logger.Debug("tool error", "content", truncate(event.ToolResult.Content, 200))
			}
		case EventResult:
			final = event.Result
		}
	}
	if final == nil {
		return nil, fmt.Errorf("session ended without a result event")
	}
	if final.IsError {
		return nil, fmt.Errorf("agent session failed: %s", truncate(final.Text, 500))
	}
	return final, nil
}

func contextForQuestion(call StageCall) string {
	var parts []string
	if objective, ok := call.Vars["objective"].(string); ok && objective != "" {
		parts = append(parts, "Objective: "+objective)
	}
	parts = append(parts, "Current stage: "+string(call.Stage))
	if doc, ok := call.Vars["research_doc"].(string); ok && doc != "" {
		parts = append(parts, "Research document: "+doc)
	}
	if doc, ok := call.Vars["plan_doc"].(string); ok && doc != "" {
		parts = append(parts, "Plan document: "+doc)
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
