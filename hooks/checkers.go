package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Checker runs an auto-fixing lint/format/type-check pass over a file. A
// non-nil error carries the checker output as corrective feedback; the file
// change itself is left in place.
type Checker interface {
	Name() string
	Check(ctx context.Context, path string) error
}

// CheckerRegistry maps file extensions to checkers. It is safe for
// concurrent use and extensible at runtime.
type CheckerRegistry struct {
	mu    sync.RWMutex
	byExt map[string]Checker
}

// NewCheckerRegistry returns an empty registry.
func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{byExt: map[string]Checker{}}
}

// Register maps the given extensions (including the dot, e.g. ".go") to a
// checker, replacing any prior registration.
func (r *CheckerRegistry) Register(extensions []string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range extensions {
		r.byExt[strings.ToLower(ext)] = checker
	}
}

// Lookup returns the checker for an extension, if one is registered.
func (r *CheckerRegistry) Lookup(extension string) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	checker, ok := r.byExt[strings.ToLower(extension)]
	return checker, ok
}

// DefaultCheckerRegistry returns a registry with the built-in Go, Python,
// and TypeScript/JavaScript checkers.
func DefaultCheckerRegistry() *CheckerRegistry {
	r := NewCheckerRegistry()
	r.Register([]string{".go"}, GoChecker{})
	r.Register([]string{".py", ".pyx"}, PythonChecker{})
	r.Register([]string{".ts", ".tsx", ".js", ".jsx"}, TypeScriptChecker{})
	return r
}

// findProjectRoot walks up from dir looking for one of the marker files.
func findProjectRoot(dir string, markers []string) string {
	for {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// runCheck executes a checker command, returning its combined output as an
// error on a non-zero exit.
func runCheck(ctx context.Context, cwd, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd
	out, err := cmd.CombinedOutput()
	if err != nil {
		text := strings.TrimSpace(string(out))
		if text == "" {
			text = err.Error()
		}
		return fmt.Errorf("%s failed:\n%s", name, text)
	}
	return nil
}

// GoChecker runs golangci-lint when available, falling back to go vet.
// Checks are project-wide from the enclosing go.mod.
type GoChecker struct{}

func (GoChecker) Name() string { return "go" }

func (GoChecker) Check(ctx context.Context, path string) error {
	root := findProjectRoot(filepath.Dir(path), []string{"go.mod"})
	if root == "" {
		return nil
	}
	if _, err := exec.LookPath("golangci-lint"); err == nil {
		return runCheck(ctx, root, "golangci-lint", "run", "./...")
	}
	return runCheck(ctx, root, "go", "vet", "./...")
}

// PythonChecker runs an auto-fixing ruff pass over the file.
type PythonChecker struct{}

func (PythonChecker) Name() string { return "python" }

func (PythonChecker) Check(ctx context.Context, path string) error {
	if _, err := exec.LookPath("ruff"); err != nil {
		return nil
	}
	return runCheck(ctx, filepath.Dir(path), "ruff", "check", "--fix", path)
}

// TypeScriptChecker runs eslint from the enclosing package root, if an
// eslint configuration exists there.
type TypeScriptChecker struct{}

func (TypeScriptChecker) Name() string { return "typescript" }

var eslintConfigs = []string{
	"eslint.config.mjs",
	"eslint.config.js",
	".eslintrc.json",
	".eslintrc.js",
	".eslintrc.cjs",
}

func (TypeScriptChecker) Check(ctx context.Context, path string) error {
	root := findProjectRoot(filepath.Dir(path), []string{"package.json"})
	if root == "" {
		return nil
	}
	configured := false
	for _, config := range eslintConfigs {
		if _, err := os.Stat(filepath.Join(root, config)); err == nil {
			configured = true
			break
		}
	}
	if !configured {
		return nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return runCheck(ctx, root, "npx", "eslint", "--fix", rel)
}
