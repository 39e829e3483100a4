package prompt

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultStagePrompts are the built-in prompt texts, keyed by stage name.
// A YAML definitions file can override any subset of them.
var defaultStagePrompts = map[string]string{
	"clarify": `You are preparing to work on the following objective:

${objective}

Read the repository layout and decide whether the objective is specific enough
to act on. Do not make any changes. If a genuine ambiguity blocks all further
work, ask exactly one question. Otherwise restate the objective in your own
words.

Finish with a fenced JSON block:
{"status": "complete", "summary": "<one-paragraph restatement>"}
or, if you must ask:
{"status": "question", "question": "<the single blocking question>"}`,

	"research": `Investigate the codebase to understand everything relevant to this objective:

${objective}

Write your findings to a new markdown file under docs/research/. Cover the
affected packages, existing conventions, and any constraints you discover. If
you conclude the objective requires no implementation work at all, say so
instead of writing a document.

Finish with a fenced JSON block:
{"status": "complete", "doc_path": "docs/research/<file>.md", "summary": "<findings summary>"}
or, when nothing needs to be built:
{"status": "early_exit", "reason": "<why no implementation is needed>"}`,

	"plan": `Using the research document at ${research_doc}, produce an implementation
plan for this objective:

${objective}

Write the plan to a new markdown file under docs/plans/. Break the work into
ordered steps with concrete file paths. Ask a question only if the research
leaves a decision you cannot make yourself.

Finish with a fenced JSON block:
{"status": "complete", "doc_path": "docs/plans/<file>.md", "summary": "<plan summary>"}`,

	"review": `Review the implementation plan at ${plan_doc} against the research at
${research_doc} and the objective:

${objective}

Check the plan for missed requirements, wrong file paths, and steps that
conflict with existing code. Do not modify anything.

Finish with a fenced JSON block:
{"status": "complete", "approved": true}
or, listing every problem found:
{"status": "complete", "approved": false, "issues": ["<issue>", "..."]}`,

	"iterate": `The plan at ${plan_doc} was reviewed and the following issues were raised:

${feedback}

Revise the plan in place to address every issue. Keep the parts the review did
not object to.

Finish with a fenced JSON block:
{"status": "complete", "doc_path": "${plan_doc}", "summary": "<what changed>"}`,

	"implement": `Carry out the plan at ${plan_doc} for this objective:

${objective}

Work through the steps in order. Run the project's tests and fix what they
surface before finishing.

Finish with a fenced JSON block:
{"status": "complete", "summary": "<what was built and how it was verified>"}`,

	"commit": `The implementation for this objective is complete:

${objective}

Review the working tree changes, stage them, and create a single commit with a
message describing what changed. Do not push.

Finish with a fenced JSON block:
{"status": "complete", "summary": "<commit subject line>"}`,
}

// Library holds one compiled prompt template per stage.
type Library struct {
	templates map[string]*Template
}

type libraryFile struct {
	Stages map[string]string `yaml:"stages"`
}

// StageGlobals returns the compile-time globals for stage prompts: the Risor
// builtins plus empty placeholders for the substitution variables, so the
// names resolve before real values arrive at render time.
func StageGlobals() map[string]any {
	globals := DefaultGlobals()
	for _, name := range []string{"objective", "research_doc", "plan_doc", "feedback"} {
		globals[name] = ""
	}
	return globals
}

// NewLibrary compiles the given stage prompt definitions. Stages absent from
// defs fall back to the built-in prompts.
func NewLibrary(compiler Compiler, defs map[string]string) (*Library, error) {
	if compiler == nil {
		compiler = NewRisorCompiler(StageGlobals())
	}
	templates := make(map[string]*Template, len(defaultStagePrompts))
	for stage, text := range defaultStagePrompts {
		if custom, ok := defs[stage]; ok {
			text = custom
		}
		tmpl, err := NewTemplate(compiler, text)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt for stage %q: %w", stage, err)
		}
		templates[stage] = tmpl
	}
	for stage, text := range defs {
		if _, ok := templates[stage]; ok {
			continue
		}
		tmpl, err := NewTemplate(compiler, text)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt for stage %q: %w", stage, err)
		}
		templates[stage] = tmpl
	}
	return &Library{templates: templates}, nil
}

// DefaultLibrary returns a library containing only the built-in prompts.
func DefaultLibrary() (*Library, error) {
	return NewLibrary(nil, nil)
}

// LoadLibrary reads a YAML prompt definitions file of the form:
//
//	stages:
//	  research: |
//	    ...prompt text with ${objective} expressions...
func LoadLibrary(compiler Compiler, path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt definitions: %w", err)
	}
	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse prompt definitions: %w", err)
	}
	return NewLibrary(compiler, file.Stages)
}

// Has reports whether a prompt is defined for the stage.
func (l *Library) Has(stage string) bool {
	_, ok := l.templates[stage]
	return ok
}

// Render evaluates the stage's prompt template against the given variables.
func (l *Library) Render(ctx context.Context, stage string, vars map[string]any) (string, error) {
	tmpl, ok := l.templates[stage]
	if !ok {
		return "", fmt.Errorf("no prompt defined for stage %q", stage)
	}
	return tmpl.Render(ctx, vars)
}
