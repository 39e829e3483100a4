package autopilot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// OutcomeKind tags the parsed result of a stage session turn. All control
// decisions downstream of the Bridge dispatch on this tag; nothing else
// pattern-matches raw agent text.
type OutcomeKind string

const (
	// OutcomeCompleted means the stage produced its terminal result.
	OutcomeCompleted OutcomeKind = "completed"

	// OutcomeQuestion means the agent asked a clarifying question and the
	// session must be resumed with an answer.
	OutcomeQuestion OutcomeKind = "question"

	// OutcomeEarlyExit means the agent determined no further work is needed.
	OutcomeEarlyExit OutcomeKind = "early_exit"
)

// StageOutcome is the tagged result of parsing one session turn.
type StageOutcome struct {
	Kind     OutcomeKind
	Question string
	DocPath  string
	Summary  string
	Feedback string
	Approved bool
	Reason   string
}

// outcomePayload is the JSON shape stages are instructed to emit, either as
// native structured output or embedded in free-form text.
type outcomePayload struct {
	Status   string   `json:"status,omitempty"`
	Question string   `json:"question,omitempty"`
	DocPath  string   `json:"doc_path,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Approved *bool    `json:"approved,omitempty"`
	Feedback string   `json:"feedback,omitempty"`
	Issues   []string `json:"issues,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	docPathPattern    = regexp.MustCompile(`(docs/(?:research|plans)/[\w\-./]+\.md)`)
)

// ParseOutcome converts a session result into a tagged StageOutcome. Native
// structured output is used when the runtime provides it; otherwise the
// result text is scanned for an embedded JSON object. Text with no parseable
// payload is treated as a completed stage whose summary is the text itself.
func ParseOutcome(result *Result) (*StageOutcome, error) {
	if result == nil {
		return nil, fmt.Errorf("nil session result")
	}

	var payload outcomePayload
	switch {
	case result.Structured != nil:
		data, err := json.Marshal(result.Structured)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode structured output: %w", err)
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode structured output: %w", err)
		}
	default:
		raw, ok := extractEmbeddedJSON(result.Text)
		if !ok {
			// Plain text result; recover a doc path by convention if present.
			return &StageOutcome{
				Kind:    OutcomeCompleted,
				Summary: strings.TrimSpace(result.Text),
				DocPath: docPathPattern.FindString(result.Text),
			}, nil
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse embedded result payload: %w", err)
		}
	}
	return outcomeFromPayload(&payload, result.Text)
}

func outcomeFromPayload(payload *outcomePayload, text string) (*StageOutcome, error) {
	outcome := &StageOutcome{
		Question: strings.TrimSpace(payload.Question),
		DocPath:  payload.DocPath,
		Summary:  payload.Summary,
		Reason:   payload.Reason,
	}
	if outcome.DocPath == "" {
		outcome.DocPath = docPathPattern.FindString(text)
	}
	if payload.Approved != nil {
		outcome.Approved = *payload.Approved
		if !outcome.Approved {
			outcome.Feedback = payload.Feedback
			if outcome.Feedback == "" && len(payload.Issues) > 0 {
				outcome.Feedback = "- " + strings.Join(payload.Issues, "\n- ")
			}
		}
	}

	switch strings.ToLower(payload.Status) {
	case "question", "needs_clarification":
		if outcome.Question == "" {
			return nil, fmt.Errorf("question status without question text")
		}
		outcome.Kind = OutcomeQuestion
	case "early_exit", "no_implementation":
		outcome.Kind = OutcomeEarlyExit
		if outcome.Reason == "" {
			outcome.Reason = payload.Summary
		}
	case "", "complete", "completed", "success":
		if outcome.Question != "" {
			outcome.Kind = OutcomeQuestion
			return outcome, nil
		}
		outcome.Kind = OutcomeCompleted
	default:
		return nil, fmt.Errorf("unknown stage status %q", payload.Status)
	}
	return outcome, nil
}

// extractEmbeddedJSON finds a JSON object in free-form text: a fenced
// ```json block first, then the first balanced top-level object.
func extractEmbeddedJSON(text string) (string, bool) {
	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		return match[1], true
	}
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
