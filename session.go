package autopilot

import (
	"fmt"
	"time"

	"go.jetify.com/typeid"
)

// NewWorkflowID returns a new prefixed id for workflow identification.
func NewWorkflowID() string {
	id, err := typeid.WithPrefix("wf")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// WorkflowStatus represents the overall workflow status.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusDone      WorkflowStatus = "done"
	WorkflowStatusEarlyExit WorkflowStatus = "early_exit"
	WorkflowStatusError     WorkflowStatus = "error"
)

// WorkflowSession tracks the mutable state of one workflow invocation. It is
// created once per run and mutated only by the Orchestrator.
type WorkflowSession struct {
	WorkflowID   string           `json:"workflow_id"`
	Objective    string           `json:"objective"`
	CurrentStage Stage            `json:"current_stage"`
	Status       WorkflowStatus   `json:"status"`
	DocPaths     map[Stage]string `json:"doc_paths"`
	SessionIDs   map[Stage]string `json:"session_ids"`
	RetryCounts  map[Stage]int    `json:"retry_counts"`
	ReviewRounds int              `json:"review_rounds"`
	Feedback     string           `json:"feedback,omitempty"`
	CostUSD      float64          `json:"cost_usd"`
	StartTime    time.Time        `json:"start_time"`

	// sessionOwner tracks which stage minted each agent session id. A session
	// id is never reused by a different stage.
	sessionOwner map[string]Stage
}

func newWorkflowSession(objective string) *WorkflowSession {
	return &WorkflowSession{
		WorkflowID:   NewWorkflowID(),
		Objective:    objective,
		CurrentStage: StageClarify,
		Status:       WorkflowStatusPending,
		DocPaths:     map[Stage]string{},
		SessionIDs:   map[Stage]string{},
		RetryCounts:  map[Stage]int{},
		StartTime:    time.Now(),
		sessionOwner: map[string]Stage{},
	}
}

// RecordResult folds a stage result into the session. It enforces that a
// session id minted for one stage is never adopted by another.
func (s *WorkflowSession) RecordResult(stage Stage, result *StageResult) error {
	if result.SessionID != "" {
		if owner, ok := s.sessionOwner[result.SessionID]; ok && owner != stage {
			return fmt.Errorf("session %s already owned by stage %s", result.SessionID, owner)
		}
		s.sessionOwner[result.SessionID] = stage
		s.SessionIDs[stage] = result.SessionID
	}
	if result.OutputDocPath != "" {
		s.DocPaths[stage] = result.OutputDocPath
	}
	s.Feedback = result.Feedback
	s.CostUSD += result.CostUSD
	return nil
}

// ToCheckpoint snapshots the session after the given stage completed.
func (s *WorkflowSession) ToCheckpoint(lastCompleted Stage) *Checkpoint {
	docs := make(map[Stage]string, len(s.DocPaths))
	for k, v := range s.DocPaths {
		docs[k] = v
	}
	sessions := make(map[Stage]string, len(s.SessionIDs))
	for k, v := range s.SessionIDs {
		sessions[k] = v
	}
	return &Checkpoint{
		WorkflowID:         s.WorkflowID,
		Objective:          s.Objective,
		Status:             s.Status,
		LastCompletedStage: lastCompleted,
		DocPaths:           docs,
		SessionIDs:         sessions,
		ReviewRounds:       s.ReviewRounds,
		Feedback:           s.Feedback,
		CostUSD:            s.CostUSD,
		CheckpointAt:       time.Now(),
	}
}

// sessionFromCheckpoint rebuilds a session from a persisted checkpoint.
func sessionFromCheckpoint(cp *Checkpoint) *WorkflowSession {
	s := &WorkflowSession{
		WorkflowID:   cp.WorkflowID,
		Objective:    cp.Objective,
		Status:       WorkflowStatusRunning,
		DocPaths:     map[Stage]string{},
		SessionIDs:   map[Stage]string{},
		RetryCounts:  map[Stage]int{},
		ReviewRounds: cp.ReviewRounds,
		Feedback:     cp.Feedback,
		CostUSD:      cp.CostUSD,
		StartTime:    time.Now(),
		sessionOwner: map[string]Stage{},
	}
	for stage, path := range cp.DocPaths {
		s.DocPaths[stage] = path
	}
	for stage, id := range cp.SessionIDs {
		s.SessionIDs[stage] = id
		s.sessionOwner[id] = stage
	}
	return s
}
