package autopilot

import "context"

// Checkpointer persists and restores workflow checkpoints.
type Checkpointer interface {
	// SaveCheckpoint atomically replaces the checkpoint for a workflow.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint loads the checkpoint for a workflow. A missing
	// checkpoint returns (nil, nil).
	LoadCheckpoint(ctx context.Context, workflowID string) (*Checkpoint, error)

	// DeleteCheckpoint removes checkpoint data for a workflow.
	DeleteCheckpoint(ctx context.Context, workflowID string) error
}
