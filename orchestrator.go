package autopilot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/deepnoodle-ai/autopilot/hooks"
	"github.com/deepnoodle-ai/autopilot/prompt"
	"github.com/deepnoodle-ai/autopilot/retry"
)

// WorkflowResult is the terminal outcome of a workflow run.
type WorkflowResult struct {
	WorkflowID    string         `json:"workflow_id"`
	Status        WorkflowStatus `json:"status"`
	Stage         Stage          `json:"stage"`
	OutputDocPath string         `json:"output_doc_path,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	CostUSD       float64        `json:"cost_usd"`
}

// Orchestrator drives a workflow through the stage pipeline: clarify,
// research, plan, review (looping with iterate), implement, commit.
type Orchestrator struct {
	bridge       *Bridge
	checkpointer Checkpointer
	callbacks    WorkflowCallbacks
	logger       *slog.Logger
	config       Config
}

// OrchestratorOptions configures an Orchestrator. Runtime is required.
type OrchestratorOptions struct {
	Runtime      AgentRuntime
	Prompts      *prompt.Library
	Hooks        *hooks.Engine
	Resolver     QuestionResolver
	Checkpointer Checkpointer
	Callbacks    WorkflowCallbacks
	Logger       *slog.Logger
	Config       Config
}

func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Runtime == nil {
		return nil, fmt.Errorf("agent runtime is required")
	}
	opts.Config.ApplyDefaults()
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewBaseWorkflowCallbacks()
	}
	if opts.Checkpointer == nil {
		opts.Checkpointer = NewNullCheckpointer()
	}
	bridge, err := NewBridge(BridgeOptions{
		Runtime:      opts.Runtime,
		Hooks:        opts.Hooks,
		Resolver:     opts.Resolver,
		Prompts:      opts.Prompts,
		WorkingDir:   opts.Config.WorkingDir,
		MaxQuestions: opts.Config.MaxQuestions,
		Logger:       opts.Logger,
		Callbacks:    opts.Callbacks,
	})
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		bridge:       bridge,
		checkpointer: opts.Checkpointer,
		callbacks:    opts.Callbacks,
		logger:       opts.Logger,
		config:       opts.Config,
	}, nil
}

// RunOptions configures a workflow run that does not start from scratch.
type RunOptions struct {
	Objective  string
	StartStage Stage

	// DocPaths pre-seeds stage documents so a run can start mid-pipeline,
	// e.g. planning against an existing research document.
	DocPaths map[Stage]string
}

// Run executes a new workflow for the objective, starting at the clarify
// stage.
func (o *Orchestrator) Run(ctx context.Context, objective string) (*WorkflowResult, error) {
	return o.RunWith(ctx, RunOptions{Objective: objective})
}

// RunWith executes a new workflow with an explicit start stage and pre-seeded
// documents.
func (o *Orchestrator) RunWith(ctx context.Context, opts RunOptions) (*WorkflowResult, error) {
	if opts.Objective == "" {
		return nil, NewValidationError("", "objective", "must not be empty")
	}
	start := opts.StartStage
	if start == "" {
		start = StageClarify
	}
	if !ValidStage(start) {
		return nil, NewValidationError(start, "start_stage", "unknown stage")
	}

	sess := newWorkflowSession(opts.Objective)
	for stage, path := range opts.DocPaths {
		sess.DocPaths[stage] = path
	}
	return o.execute(ctx, sess, start)
}

// Resume continues a previously checkpointed workflow from the stage after
// its last completed one.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string) (*WorkflowResult, error) {
	cp, err := o.checkpointer.LoadCheckpoint(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		return nil, NewValidationError("", "workflow_id",
			fmt.Sprintf("no checkpoint found for workflow %s", workflowID))
	}
	sess := sessionFromCheckpoint(cp)
	start, done := o.nextStage(sess, cp.LastCompletedStage)
	if done {
		return nil, NewValidationError("", "workflow_id",
			fmt.Sprintf("workflow %s already completed", workflowID))
	}
	o.logger.Info("resuming workflow",
		"workflow_id", sess.WorkflowID,
		"last_completed", cp.LastCompletedStage,
		"next_stage", start)
	return o.execute(ctx, sess, start)
}

func (o *Orchestrator) execute(ctx context.Context, sess *WorkflowSession, start Stage) (*WorkflowResult, error) {
	sess.Status = WorkflowStatusRunning

	workflowEvent := &WorkflowEvent{
		WorkflowID: sess.WorkflowID,
		Objective:  sess.Objective,
		Status:     sess.Status,
		StartTime:  time.Now(),
	}
	o.callbacks.BeforeWorkflowExecution(ctx, workflowEvent)

	result, err := o.runPipeline(ctx, sess, start)

	workflowEvent.EndTime = time.Now()
	workflowEvent.Duration = workflowEvent.EndTime.Sub(workflowEvent.StartTime)
	workflowEvent.Status = sess.Status
	workflowEvent.CostUSD = sess.CostUSD
	workflowEvent.Error = err
	o.callbacks.AfterWorkflowExecution(ctx, workflowEvent)

	return result, err
}

func (o *Orchestrator) runPipeline(ctx context.Context, sess *WorkflowSession, start Stage) (*WorkflowResult, error) {
	stage := start
	for {
		sess.CurrentStage = stage

		if err := o.validatePrerequisites(sess, stage); err != nil {
			sess.Status = WorkflowStatusError
			return nil, err
		}

		result, err := o.runStage(ctx, sess, stage)
		if err != nil {
			classified := ClassifyError(stage, err)
			if classified.Type == ErrorTypeCancelled {
				o.logger.Info("workflow interrupted",
					"workflow_id", sess.WorkflowID,
					"stage", stage)
			} else {
				sess.Status = WorkflowStatusError
			}
			return nil, classified
		}

		if err := sess.RecordResult(stage, result); err != nil {
			sess.Status = WorkflowStatusError
			return nil, ClassifyError(stage, err)
		}
		if stage == StageIterate {
			sess.ReviewRounds++
		}

		o.logger.Info("stage completed",
			"workflow_id", sess.WorkflowID,
			"stage", stage,
			"status", result.Status,
			"doc", result.OutputDocPath)

		if result.Status == StageEarlyExit {
			sess.Status = WorkflowStatusEarlyExit
			if err := o.checkpointer.DeleteCheckpoint(ctx, sess.WorkflowID); err != nil {
				o.logger.Warn("failed to clear checkpoint", "error", err)
			}
			return &WorkflowResult{
				WorkflowID: sess.WorkflowID,
				Status:     WorkflowStatusEarlyExit,
				Stage:      stage,
				Summary:    result.Summary,
				CostUSD:    sess.CostUSD,
			}, nil
		}

		next, done := o.nextStage(sess, stage)
		if done {
			sess.Status = WorkflowStatusDone
			if err := o.checkpointer.DeleteCheckpoint(ctx, sess.WorkflowID); err != nil {
				o.logger.Warn("failed to clear checkpoint", "error", err)
			}
			return &WorkflowResult{
				WorkflowID:    sess.WorkflowID,
				Status:        WorkflowStatusDone,
				Stage:         stage,
				OutputDocPath: o.planDoc(sess),
				Summary:       result.Summary,
				CostUSD:       sess.CostUSD,
			}, nil
		}

		if err := o.checkpointer.SaveCheckpoint(ctx, sess.ToCheckpoint(stage)); err != nil {
			o.logger.Warn("failed to save checkpoint",
				"workflow_id", sess.WorkflowID,
				"error", err)
		}
		stage = next
	}
}

// runStage executes one stage with per-attempt timeout and transient-error
// retry. Only recoverable failures consume the retry budget.
func (o *Orchestrator) runStage(ctx context.Context, sess *WorkflowSession, stage Stage) (*StageResult, error) {
	var result *StageResult
	err := retry.Do(ctx, func() error {
		sess.RetryCounts[stage]++
		attempt := sess.RetryCounts[stage]

		stageCtx := ctx
		cancel := func() {}
		if o.config.StageTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, o.config.StageTimeout)
		}
		defer cancel()

		event := &StageEvent{
			WorkflowID: sess.WorkflowID,
			Stage:      stage,
			Attempt:    attempt,
			StartTime:  time.Now(),
		}
		o.callbacks.BeforeStageExecution(stageCtx, event)

		res, err := o.bridge.CallStage(stageCtx, StageCall{
			Stage:      stage,
			WorkflowID: sess.WorkflowID,
			Vars:       o.stageVars(sess),
		})

		event.EndTime = time.Now()
		event.Duration = event.EndTime.Sub(event.StartTime)
		event.Result = res
		event.Error = err
		if res != nil {
			event.SessionID = res.SessionID
		}
		o.callbacks.AfterStageExecution(stageCtx, event)

		if err != nil {
			// Per-attempt timeout is transient even though the stage ctx is
			// past its deadline; classify against the parent ctx state.
			if ctx.Err() != nil {
				return ClassifyError(stage, ctx.Err())
			}
			classified := ClassifyError(stage, err)
			if classified.IsRecoverable() {
				o.logger.Warn("stage attempt failed",
					"stage", stage,
					"attempt", attempt,
					"error", err)
			}
			return classified
		}
		result = res
		return nil
	},
		retry.WithMaxRetries(o.config.MaxAttempts-1),
		retry.WithBaseWait(o.config.BaseWait),
		retry.WithMaxWait(o.config.MaxWait),
		retry.WithJitter(true))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// nextStage computes the stage after a completed one. Review alternates with
// iterate until the plan is approved or the round budget runs out. The
// computation never mutates the session, so Resume can reuse it to pick the
// start stage; ReviewRounds counts completed iterate stages and is advanced
// by the pipeline loop.
func (o *Orchestrator) nextStage(sess *WorkflowSession, completed Stage) (Stage, bool) {
	switch completed {
	case StageClarify:
		return StageResearch, false
	case StageResearch:
		return StagePlan, false
	case StagePlan, StageIterate:
		return StageReview, false
	case StageReview:
		if sess.Feedback == "" {
			return StageImplement, false
		}
		if sess.ReviewRounds >= o.config.MaxReviewRounds {
			o.logger.Warn("review round budget exhausted, proceeding to implement",
				"workflow_id", sess.WorkflowID,
				"rounds", sess.ReviewRounds)
			return StageImplement, false
		}
		return StageIterate, false
	case StageImplement:
		return StageCommit, false
	case StageCommit:
		return "", true
	default:
		return "", true
	}
}

// validatePrerequisites confirms the documents a stage depends on exist
// before any agent session is opened.
func (o *Orchestrator) validatePrerequisites(sess *WorkflowSession, stage Stage) error {
	workingDir := o.config.WorkingDir
	switch stage {
	case StagePlan:
		return requireDoc(workingDir, sess.DocPaths[StageResearch], ResearchDocDir, stage, "research_doc")
	case StageReview, StageIterate, StageImplement:
		return requireDoc(workingDir, o.planDoc(sess), PlansDocDir, stage, "plan_doc")
	}
	return nil
}

// stageVars builds the prompt template variables from session state.
func (o *Orchestrator) stageVars(sess *WorkflowSession) map[string]any {
	return map[string]any{
		"objective":    sess.Objective,
		"research_doc": sess.DocPaths[StageResearch],
		"plan_doc":     o.planDoc(sess),
		"feedback":     sess.Feedback,
	}
}

// planDoc returns the current plan document, preferring the latest revision
// written by the iterate stage.
func (o *Orchestrator) planDoc(sess *WorkflowSession) string {
	if path, ok := sess.DocPaths[StageIterate]; ok && path != "" {
		return path
	}
	return sess.DocPaths[StagePlan]
}
