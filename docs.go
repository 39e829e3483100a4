package autopilot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document path conventions. Stage agents write their artifacts under these
// directories relative to the working directory; the orchestrator validates
// the paths but never parses document content.
const (
	ResearchDocDir = "docs/research"
	PlansDocDir    = "docs/plans"
)

// ValidateDocPath checks that a stage-reported document path is relative,
// stays under the expected directory, and uses a markdown extension.
func ValidateDocPath(path, wantDir string) error {
	if path == "" {
		return fmt.Errorf("document path is empty")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("document path %q must be relative", path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if strings.Contains(clean, "..") {
		return fmt.Errorf("document path %q must not escape the working directory", path)
	}
	if !strings.HasPrefix(clean, wantDir+"/") {
		return fmt.Errorf("document path %q must be under %s/", path, wantDir)
	}
	if !strings.HasSuffix(clean, ".md") {
		return fmt.Errorf("document path %q must be a markdown file", path)
	}
	return nil
}

// requireDoc validates a prerequisite document recorded by an earlier stage
// and confirms it exists on disk. The field name identifies which input was
// missing or malformed.
func requireDoc(workingDir, path, wantDir string, stage Stage, field string) error {
	if err := ValidateDocPath(path, wantDir); err != nil {
		return NewValidationError(stage, field, err.Error())
	}
	full := filepath.Join(workingDir, filepath.FromSlash(path))
	if _, err := os.Stat(full); err != nil {
		return NewValidationError(stage, field, fmt.Sprintf("document %q not found", path))
	}
	return nil
}
