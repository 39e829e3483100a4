package autopilot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Question is an ambiguity surfaced by a stage agent that blocks its work.
type Question struct {
	Text    string
	Context string
}

// QuestionResolver produces an answer to a blocking question. Implementations
// may consult a human, a secondary agent, or a fixed script.
type QuestionResolver interface {
	Resolve(ctx context.Context, question Question) (string, error)
}

// QAPair records one resolved question for auditing.
type QAPair struct {
	Question string
	Answer   string
}

// readOnlyTools is the tool subset granted to the answering agent. It can
// explore the codebase but cannot change it.
var readOnlyTools = []string{"Read", "Glob", "Grep"}

// AgentQuestionResolver answers questions by opening a secondary read-only
// agent session against the same working directory.
type AgentQuestionResolver struct {
	runtime    AgentRuntime
	workingDir string
	logger     *slog.Logger

	mutex sync.Mutex
	log   []QAPair
}

// AgentQuestionResolverOptions configures an AgentQuestionResolver.
type AgentQuestionResolverOptions struct {
	Runtime    AgentRuntime
	WorkingDir string
	Logger     *slog.Logger
}

func NewAgentQuestionResolver(opts AgentQuestionResolverOptions) (*AgentQuestionResolver, error) {
	if opts.Runtime == nil {
		return nil, fmt.Errorf("agent runtime is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AgentQuestionResolver{
		runtime:    opts.Runtime,
		workingDir: opts.WorkingDir,
		logger:     logger,
	}, nil
}

// Resolve opens a single-turn session with read-only tools, asks the
// question, and parses the structured answer out of the final result text.
func (r *AgentQuestionResolver) Resolve(ctx context.Context, question Question) (string, error) {
	prompt := buildAnswerPrompt(question)

	stream, err := r.runtime.OpenSession(ctx, SessionRequest{
		Prompt:       prompt,
		AllowedTools: readOnlyTools,
		WorkingDir:   r.workingDir,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open answering session: %w", err)
	}
	defer stream.Close()

	var resultText string
	for {
		event, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("answering session failed: %w", err)
		}
		if event.Type == EventResult && event.Result != nil {
			resultText = event.Result.Text
		}
	}

	answer := parseAnswer(resultText)
	r.logger.Debug("question resolved",
		"question", question.Text,
		"answer", answer)

	r.mutex.Lock()
	r.log = append(r.log, QAPair{Question: question.Text, Answer: answer})
	r.mutex.Unlock()

	return answer, nil
}

// Answers returns a copy of all question/answer pairs resolved so far.
func (r *AgentQuestionResolver) Answers() []QAPair {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	pairs := make([]QAPair, len(r.log))
	copy(pairs, r.log)
	return pairs
}

func buildAnswerPrompt(question Question) string {
	var sb strings.Builder
	sb.WriteString("You are a senior technical advisor answering a codebase question.\n\n")
	sb.WriteString("## Question\n")
	sb.WriteString(question.Text)
	sb.WriteString("\n")
	if question.Context != "" {
		sb.WriteString("\n## Context\n")
		sb.WriteString(question.Context)
		sb.WriteString("\n")
	}
	sb.WriteString(`
## Response Format
Respond with valid JSON in this exact structure:

` + "```json" + `
{
  "answers": [
    {
      "content": "Your answer here",
      "evidence": "file/path:line or null if none",
      "confidence": "HIGH or MEDIUM or LOW"
    }
  ]
}
` + "```" + `

Use Read, Glob, and Grep to find concrete evidence before answering. If the
question cannot be answered from the code, say so with confidence LOW.
`)
	return sb.String()
}

type answerPayload struct {
	Content    string `json:"content"`
	Evidence   string `json:"evidence"`
	Confidence string `json:"confidence"`
}

type answersPayload struct {
	Answers []json.RawMessage `json:"answers"`
}

var (
	answersObjectPattern = regexp.MustCompile(`(?s)\{.*"answers".*\}`)
	answerMarkerPattern  = regexp.MustCompile(`(?is)===\s*ANSWER\s*\d+\s*===\s*(.*?)(?:===\s*ANSWER|\z)`)
	numberedLinePattern  = regexp.MustCompile(`^\d+[.):\s]+(.+)$`)
)

// parseAnswer extracts the answer from the agent's response text. It tries a
// JSON body first, then "=== ANSWER n ===" markers, then numbered or bulleted
// lines, and finally falls back to the trimmed text itself.
func parseAnswer(text string) string {
	if answer, ok := parseJSONAnswer(text); ok {
		return answer
	}
	if answer, ok := parseMarkerAnswer(text); ok {
		return answer
	}
	if answer, ok := parseListAnswer(text); ok {
		return answer
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "(no answer)"
	}
	return trimmed
}

func parseJSONAnswer(text string) (string, bool) {
	body := ""
	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		body = match[1]
	} else if match := answersObjectPattern.FindString(text); match != "" {
		body = match
	} else {
		return "", false
	}

	var payload answersPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return "", false
	}
	if len(payload.Answers) == 0 {
		return "", false
	}

	raw := payload.Answers[0]
	var item answerPayload
	if err := json.Unmarshal(raw, &item); err == nil && item.Content != "" {
		answer := item.Content
		if item.Evidence != "" && item.Evidence != "null" {
			answer += fmt.Sprintf(" [evidence: %s]", item.Evidence)
		}
		if item.Confidence != "" {
			answer += fmt.Sprintf(" [confidence: %s]", item.Confidence)
		}
		return answer, true
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil && plain != "" {
		return plain, true
	}
	return "", false
}

func parseMarkerAnswer(text string) (string, bool) {
	match := answerMarkerPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	answer := strings.TrimSpace(match[1])
	return answer, answer != ""
}

func parseListAnswer(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if match := numberedLinePattern.FindStringSubmatch(stripped); match != nil {
			return strings.TrimSpace(match[1]), true
		}
		if strings.HasPrefix(stripped, "- ") {
			return strings.TrimSpace(stripped[2:]), true
		}
	}
	return "", false
}

// StaticQuestionResolver answers every question with a fixed response. Useful
// for non-interactive runs where any ambiguity should resolve to a default.
type StaticQuestionResolver struct {
	Answer string
}

func (r *StaticQuestionResolver) Resolve(ctx context.Context, question Question) (string, error) {
	if r.Answer != "" {
		return r.Answer, nil
	}
	return "Use your best judgment and proceed with the most conventional interpretation.", nil
}
