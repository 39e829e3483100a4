// Package hooks implements the two interception points around agent tool
// invocations: a pre-action safety check on command-executing tools and a
// post-action lint/format pass on file-modifying tools.
package hooks

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

// Action is the outcome of a pre-action check.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Decision is produced synchronously per tool-invocation event. It is never
// persisted.
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Allow returns a permissive decision.
func Allow() Decision {
	return Decision{Action: ActionAllow}
}

// Deny returns a blocking decision with the given reason. The reason becomes
// the tool's observed result, so the agent can adapt within the same turn.
func Deny(reason string) Decision {
	return Decision{Action: ActionDeny, Reason: reason}
}

// commandTools are tools whose input is shell command text.
var commandTools = map[string]bool{
	"Bash": true,
}

// fileTools are tools that create or modify files.
var fileTools = map[string]bool{
	"Write":     true,
	"Edit":      true,
	"MultiEdit": true,
}

// Engine evaluates tool invocations against the safety deny-list and the
// post-action checker registry.
type Engine struct {
	rules    []DenyRule
	checkers *CheckerRegistry
	logger   *slog.Logger
}

// EngineOptions configures a hook Engine. Zero values select the default
// deny rules, the default checker registry, and a discard logger.
type EngineOptions struct {
	DenyRules []DenyRule
	Checkers  *CheckerRegistry
	Logger    *slog.Logger
}

// NewEngine creates a hook engine.
func NewEngine(opts EngineOptions) *Engine {
	if opts.DenyRules == nil {
		opts.DenyRules = DefaultDenyRules()
	}
	if opts.Checkers == nil {
		opts.Checkers = DefaultCheckerRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		rules:    opts.DenyRules,
		checkers: opts.Checkers,
		logger:   opts.Logger,
	}
}

// Checkers returns the engine's checker registry so callers can register
// additional extensions.
func (e *Engine) Checkers() *CheckerRegistry {
	return e.checkers
}

// PreToolUse evaluates a tool invocation before execution. Only
// command-executing tools are checked; everything else is allowed.
func (e *Engine) PreToolUse(ctx context.Context, toolName string, input map[string]any) Decision {
	if !commandTools[toolName] {
		return Allow()
	}
	command, _ := input["command"].(string)
	if command == "" {
		return Allow()
	}
	for _, rule := range e.rules {
		if rule.Matches(command) {
			e.logger.Warn("blocked dangerous command",
				"tool", toolName,
				"reason", rule.Reason,
				"command", command)
			return Deny(rule.Reason)
		}
	}
	return Allow()
}

// PostToolUse runs after a file-creating or modifying tool completed. The
// returned string is corrective feedback for the agent's next turn; an empty
// string means nothing to report. The applied file change is never rolled
// back. Unregistered extensions are a no-op.
func (e *Engine) PostToolUse(ctx context.Context, toolName string, input map[string]any) string {
	if !fileTools[toolName] {
		return ""
	}
	path, _ := input["file_path"].(string)
	if path == "" {
		return ""
	}
	checker, ok := e.checkers.Lookup(filepath.Ext(path))
	if !ok {
		return ""
	}
	if err := checker.Check(ctx, path); err != nil {
		e.logger.Info("post-action check failed",
			"checker", checker.Name(),
			"path", path,
			"error", err)
		return err.Error()
	}
	return ""
}
