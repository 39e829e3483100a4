package autopilot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ClaudeRuntime drives the claude CLI as the agent runtime. Each OpenSession
// call spawns one `claude -p` process in stream-json mode and adapts its
// output lines into session events.
//
// The CLI executes tools inside its own process, so SessionRequest.Interceptor
// cannot be consulted in-process. Enforcement happens through a generated
// settings file (WriteHookSettings) whose hooks shell back into the
// `autopilot hook` subcommand.
type ClaudeRuntime struct {
	// Binary is the CLI executable. Empty means "claude" on PATH.
	Binary string

	// SettingsPath, when set, is passed as --settings so tool invocations go
	// through the safety hooks.
	SettingsPath string

	Logger *slog.Logger
}

func (r *ClaudeRuntime) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "claude"
}

func (r *ClaudeRuntime) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenSession spawns one CLI turn and returns its event stream.
func (r *ClaudeRuntime) OpenSession(ctx context.Context, req SessionRequest) (EventStream, error) {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(req.AllowedTools, ","))
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", string(req.PermissionMode))
	}
	if r.SettingsPath != "" {
		args = append(args, "--settings", r.SettingsPath)
	}

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Dir = req.WorkingDir
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", r.binary(), err)
	}
	r.logger().Debug("agent session started",
		"binary", r.binary(),
		"resume", req.SessionID != "")

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &claudeStream{cmd: cmd, scanner: scanner}, nil
}

// claudeMessage is one stream-json output line.
type claudeMessage struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype,omitempty"`
	SessionID    string  `json:"session_id,omitempty"`
	Result       string  `json:"result,omitempty"`
	IsError      bool    `json:"is_error,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
	Message      *struct {
		Content []claudeContentBlock `json:"content"`
	} `json:"message,omitempty"`
}

type claudeContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type claudeStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner

	// pending holds events decoded from a line that produced more than one.
	pending []*Event
	done    bool

	closeOnce sync.Once
	closeErr  error
}

func (s *claudeStream) Next(ctx context.Context) (*Event, error) {
	for {
		if len(s.pending) > 0 {
			event := s.pending[0]
			s.pending = s.pending[1:]
			return event, nil
		}
		if s.done {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read agent output: %w", err)
			}
			return nil, io.EOF
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var msg claudeMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			// Non-JSON noise on stdout is skipped rather than fatal.
			continue
		}
		s.pending = append(s.pending, eventsFromMessage(&msg)...)
		if msg.Type == "result" {
			// Nothing meaningful follows the result line.
			s.done = true
		}
	}
}

func eventsFromMessage(msg *claudeMessage) []*Event {
	switch msg.Type {
	case "assistant":
		if msg.Message == nil {
			return nil
		}
		var events []*Event
		for _, block := range msg.Message.Content {
			switch block.Type {
			case "text":
				events = append(events, &Event{Type: EventText, Text: block.Text})
			case "tool_use":
				events = append(events, &Event{Type: EventToolCall, ToolCall: &ToolCall{
					ID:    block.ID,
					Name:  block.Name,
					Input: block.Input,
				}})
			}
		}
		return events
	case "user":
		if msg.Message == nil {
			return nil
		}
		var events []*Event
		for _, block := range msg.Message.Content {
			if block.Type != "tool_result" {
				continue
			}
			events = append(events, &Event{Type: EventToolResult, ToolResult: &ToolResult{
				ToolID:  block.ToolUseID,
				Content: flattenToolContent(block.Content),
				IsError: block.IsError,
			}})
		}
		return events
	case "result":
		return []*Event{{Type: EventResult, Result: &Result{
			Text:      msg.Result,
			SessionID: msg.SessionID,
			CostUSD:   msg.TotalCostUSD,
			IsError:   msg.IsError,
		}}}
	default:
		// System and unknown message types carry no session semantics.
		return nil
	}
}

// flattenToolContent renders a tool_result content field, which may be a
// plain string or a list of content blocks.
func flattenToolContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var blocks []claudeContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

func (s *claudeStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.closeErr = s.cmd.Wait()
	})
	return s.closeErr
}

// hookSettings is the CLI settings shape that routes tool invocations through
// the autopilot hook subcommand.
type hookSettings struct {
	Hooks map[string][]hookMatcher `json:"hooks"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookCommand `json:"hooks"`
}

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// WriteHookSettings writes a CLI settings file wiring the pre-action safety
// check and the post-action lint pass to the given autopilot executable.
// Returns the settings file path.
func WriteHookSettings(dir, executable string) (string, error) {
	settings := hookSettings{
		Hooks: map[string][]hookMatcher{
			"PreToolUse": {{
				Matcher: "Bash",
				Hooks:   []hookCommand{{Type: "command", Command: executable + " hook pre"}},
			}},
			"PostToolUse": {{
				Matcher: "Write|Edit|MultiEdit",
				Hooks:   []hookCommand{{Type: "command", Command: executable + " hook post"}},
			}},
		},
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create settings dir: %w", err)
	}
	path := filepath.Join(dir, "hook-settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write hook settings: %w", err)
	}
	return path, nil
}
