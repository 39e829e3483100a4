package autopilot

import "time"

// Checkpoint is a persisted record of the last successfully completed stage
// of a workflow run. One record exists per workflow id; it is overwritten
// atomically on each stage completion and read once at resume time.
type Checkpoint struct {
	WorkflowID         string           `json:"workflow_id"`
	Objective          string           `json:"objective"`
	Status             WorkflowStatus   `json:"status"`
	LastCompletedStage Stage            `json:"last_completed_stage"`
	DocPaths           map[Stage]string `json:"doc_paths"`
	SessionIDs         map[Stage]string `json:"session_ids"`
	ReviewRounds       int              `json:"review_rounds"`
	Feedback           string           `json:"feedback,omitempty"`
	CostUSD            float64          `json:"cost_usd"`
	CheckpointAt       time.Time        `json:"checkpoint_at"`
}
