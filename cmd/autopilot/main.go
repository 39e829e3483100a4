package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/deepnoodle-ai/autopilot"
	"github.com/deepnoodle-ai/autopilot/hooks"
	"github.com/deepnoodle-ai/autopilot/prompt"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitEarlyExit   = 2
	exitInterrupted = 130
)

var (
	flagResume      string
	flagFromStage   string
	flagResearchDoc string
	flagConfig      string
	flagVerbose     bool
	flagJSONLogs    bool
)

func main() {
	root := &cobra.Command{
		Use:           "autopilot",
		Short:         "Autonomous coding workflow orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newListCommand(), newHookCommand())

	if err := root.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(exitError)
	}
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [objective]",
		Short: "Run a workflow for an objective",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			objective := ""
			if len(args) > 0 {
				objective = args[0]
			}
			runWorkflow(objective)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagResume, "resume", "", "resume a checkpointed workflow by id")
	cmd.Flags().StringVar(&flagFromStage, "from-stage", "", "start at a specific stage")
	cmd.Flags().StringVar(&flagResearchDoc, "research-doc", "", "pre-existing research document path")
	cmd.Flags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	cmd.Flags().BoolVar(&flagJSONLogs, "json-logs", false, "machine-readable log output")
	return cmd
}

// runWorkflow executes or resumes a workflow and exits with the outcome code.
func runWorkflow(objective string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := autopilot.LoadConfig(flagConfig)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(exitError)
	}

	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	var logger *slog.Logger
	if flagJSONLogs {
		logger = autopilot.NewJSONLogger(level)
	} else {
		logger = autopilot.NewLogger(level)
	}

	orchestrator, err := buildOrchestrator(cfg, logger)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(exitError)
	}

	var result *autopilot.WorkflowResult
	switch {
	case flagResume != "":
		color.Blue("Resuming workflow %s", flagResume)
		result, err = orchestrator.Resume(ctx, flagResume)
	default:
		if objective == "" {
			color.Red("Error: an objective is required")
			os.Exit(exitError)
		}
		opts := autopilot.RunOptions{
			Objective:  objective,
			StartStage: autopilot.Stage(flagFromStage),
		}
		if flagResearchDoc != "" {
			opts.DocPaths = map[autopilot.Stage]string{
				autopilot.StageResearch: flagResearchDoc,
			}
			if opts.StartStage == "" {
				opts.StartStage = autopilot.StagePlan
			}
		}
		color.Blue("Starting workflow: %s", objective)
		result, err = orchestrator.RunWith(ctx, opts)
	}

	if err != nil {
		if autopilot.IsCancellation(err) {
			color.Yellow("Interrupted; progress is checkpointed")
			os.Exit(exitInterrupted)
		}
		color.Red("Workflow failed: %v", err)
		os.Exit(exitError)
	}

	switch result.Status {
	case autopilot.WorkflowStatusEarlyExit:
		color.Yellow("No implementation needed: %s", result.Summary)
		os.Exit(exitEarlyExit)
	default:
		color.Green("Workflow %s completed", result.WorkflowID)
		if result.OutputDocPath != "" {
			color.White("Plan: %s", result.OutputDocPath)
		}
		if result.Summary != "" {
			color.White("%s", result.Summary)
		}
		color.White("Total cost: $%.4f", result.CostUSD)
		os.Exit(exitOK)
	}
}

func buildOrchestrator(cfg *autopilot.Config, logger *slog.Logger) (*autopilot.Orchestrator, error) {
	checkpointer, err := autopilot.NewFileCheckpointer(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	executable, err := os.Executable()
	if err != nil {
		executable = "autopilot"
	}
	settingsPath, err := autopilot.WriteHookSettings(filepath.Join(cfg.StateDir, "settings"), executable)
	if err != nil {
		return nil, err
	}

	runtime := &autopilot.ClaudeRuntime{
		SettingsPath: settingsPath,
		Logger:       logger,
	}

	var prompts *prompt.Library
	if cfg.PromptsFile != "" {
		prompts, err = prompt.LoadLibrary(nil, cfg.PromptsFile)
	} else {
		prompts, err = prompt.DefaultLibrary()
	}
	if err != nil {
		return nil, err
	}

	return autopilot.NewOrchestrator(autopilot.OrchestratorOptions{
		Runtime:      runtime,
		Prompts:      prompts,
		Hooks:        hooks.NewEngine(hooks.EngineOptions{Logger: logger}),
		Checkpointer: checkpointer,
		Logger:       logger,
		Config:       *cfg,
	})
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpointed workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := autopilot.LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			checkpointer, err := autopilot.NewFileCheckpointer(cfg.StateDir)
			if err != nil {
				return err
			}
			checkpoints, err := checkpointer.ListWorkflows(cmd.Context())
			if err != nil {
				return err
			}
			if len(checkpoints) == 0 {
				color.White("No checkpointed workflows")
				return nil
			}
			for _, cp := range checkpoints {
				color.Cyan("%s", cp.WorkflowID)
				color.White("  objective: %s", cp.Objective)
				color.White("  last completed: %s (%s)", cp.LastCompletedStage,
					cp.CheckpointAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

// hookInput is the JSON the CLI feeds a hook command on stdin.
type hookInput struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// preHookOutput is the decision shape the CLI expects from a PreToolUse hook.
type preHookOutput struct {
	HookSpecificOutput struct {
		HookEventName            string `json:"hookEventName"`
		PermissionDecision       string `json:"permissionDecision"`
		PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
	} `json:"hookSpecificOutput"`
}

func newHookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hook [pre|post]",
		Short:  "Evaluate a tool invocation (invoked by the agent CLI)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input hookInput
			if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
				return fmt.Errorf("failed to decode hook input: %w", err)
			}
			engine := hooks.NewEngine(hooks.EngineOptions{})
			switch args[0] {
			case "pre":
				decision := engine.PreToolUse(cmd.Context(), input.ToolName, input.ToolInput)
				if decision.Action == hooks.ActionDeny {
					var out preHookOutput
					out.HookSpecificOutput.HookEventName = "PreToolUse"
					out.HookSpecificOutput.PermissionDecision = "deny"
					out.HookSpecificOutput.PermissionDecisionReason = decision.Reason
					return json.NewEncoder(os.Stdout).Encode(out)
				}
				return nil
			case "post":
				if feedback := engine.PostToolUse(cmd.Context(), input.ToolName, input.ToolInput); feedback != "" {
					// Exit code 2 feeds stderr back to the agent.
					fmt.Fprintln(os.Stderr, feedback)
					os.Exit(2)
				}
				return nil
			default:
				return fmt.Errorf("unknown hook type %q", args[0])
			}
		},
	}
	return cmd
}
