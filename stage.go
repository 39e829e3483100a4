package autopilot

// Stage identifies one phase of the clarify→research→plan→review→implement
// pipeline.
type Stage string

const (
	StageClarify   Stage = "clarify"
	StageResearch  Stage = "research"
	StagePlan      Stage = "plan"
	StageReview    Stage = "review"
	StageIterate   Stage = "iterate"
	StageImplement Stage = "implement"
	StageCommit    Stage = "commit"
)

// stageOrder is the fixed progression for a workflow run. The review/iterate
// pair loops outside of this ordering, bounded by Config.MaxReviewRounds.
var stageOrder = []Stage{
	StageClarify,
	StageResearch,
	StagePlan,
	StageReview,
	StageIterate,
	StageImplement,
	StageCommit,
}

// StageIndex returns the position of a stage in the fixed progression, or -1
// for an unknown stage.
func StageIndex(stage Stage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// ValidStage reports whether the given stage name is part of the pipeline.
func ValidStage(stage Stage) bool {
	return StageIndex(stage) >= 0
}

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// StageStatus is the status reported by a single stage call.
type StageStatus string

const (
	StageSuccess   StageStatus = "success"
	StageEarlyExit StageStatus = "early_exit"
	StageError     StageStatus = "error"
)

// StageResult is the aggregated result of one stage call. It is produced by
// the Bridge exactly once per call and is immutable once returned.
type StageResult struct {
	Stage         Stage       `json:"stage"`
	Status        StageStatus `json:"status"`
	OutputDocPath string      `json:"output_doc_path,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
	Summary       string      `json:"summary,omitempty"`

	// Feedback carries outstanding review feedback. An empty value from the
	// review stage means the plan was approved.
	Feedback string `json:"feedback,omitempty"`

	// CostUSD is the total cost reported by the agent runtime for this stage
	// call, including AITL resumption turns.
	CostUSD float64 `json:"cost_usd,omitempty"`

	// Questions is the number of clarifying questions resolved during the
	// stage call.
	Questions int `json:"questions,omitempty"`
}

// Tool allow-lists per stage. Research and clarify stages are read-only;
// planning stages may write documents; implement and commit get the full set.
var stageTools = map[Stage][]string{
	StageClarify:   {"Read", "Glob", "Grep"},
	StageResearch:  {"Read", "Glob", "Grep", "Write"},
	StagePlan:      {"Read", "Glob", "Grep", "Write", "Edit"},
	StageReview:    {"Read", "Glob", "Grep"},
	StageIterate:   {"Read", "Glob", "Grep", "Write", "Edit"},
	StageImplement: {"Read", "Glob", "Grep", "Write", "Edit", "Bash"},
	StageCommit:    {"Read", "Bash"},
}

// ToolsForStage returns the tool allow-list for a stage.
func ToolsForStage(stage Stage) []string {
	tools, ok := stageTools[stage]
	if !ok {
		return nil
	}
	out := make([]string, len(tools))
	copy(out, tools)
	return out
}
