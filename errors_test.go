package autopilot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/deepnoodle-ai/autopilot/retry"
	"github.com/stretchr/testify/assert"
)

func TestClassifyErrorTransientPatterns(t *testing.T) {
	for _, text := range []string{
		"429 rate limit exceeded",
		"dial tcp: connection refused",
		"upstream service unavailable",
		"request timed out",
	} {
		werr := ClassifyError(StageResearch, errors.New(text))
		assert.Equal(t, ErrorTypeTransient, werr.Type, text)
		assert.True(t, werr.IsRecoverable(), text)
	}
}

func TestClassifyErrorCancellation(t *testing.T) {
	werr := ClassifyError(StagePlan, fmt.Errorf("stage aborted: %w", context.Canceled))
	assert.Equal(t, ErrorTypeCancelled, werr.Type)
	assert.False(t, werr.IsRecoverable())
	assert.True(t, IsCancellation(werr))
}

func TestClassifyErrorDeadline(t *testing.T) {
	werr := ClassifyError(StagePlan, context.DeadlineExceeded)
	assert.Equal(t, ErrorTypeTransient, werr.Type)
}

func TestClassifyErrorUnknownIsFatal(t *testing.T) {
	werr := ClassifyError(StageImplement, errors.New("segfault in plugin"))
	assert.Equal(t, ErrorTypeFatal, werr.Type)
	assert.False(t, werr.IsRecoverable())
}

func TestClassifyErrorPassesThroughWorkflowErrors(t *testing.T) {
	original := NewValidationError(StagePlan, "research_doc", "missing")
	werr := ClassifyError(StageImplement, fmt.Errorf("wrapped: %w", original))
	assert.Same(t, original, werr)
	assert.Equal(t, StagePlan, werr.Stage)
}

func TestWorkflowErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	werr := NewTransientError(StageResearch, cause)
	assert.ErrorIs(t, werr, cause)
}

func TestWorkflowErrorSatisfiesRetryClassification(t *testing.T) {
	assert.True(t, retry.IsRecoverable(NewTransientError(StageResearch, errors.New("flaky"))))
	assert.False(t, retry.IsRecoverable(NewValidationError(StagePlan, "plan_doc", "missing")))
	assert.False(t, retry.IsRecoverable(NewAmbiguityError(StageResearch, "which one?")))
}

func TestValidationErrorNamesField(t *testing.T) {
	werr := NewValidationError(StagePlan, "research_doc", "does not exist")
	assert.Equal(t, "research_doc", werr.Field)
	assert.Contains(t, werr.Error(), "research_doc")
}
