// Package prompt renders externally authored stage prompt templates. The
// template text itself is opaque; only ${...} substitution expressions are
// interpreted, compiled once and evaluated against per-stage variables.
package prompt

import "context"

// Value is the result of evaluating one substitution expression.
type Value interface {

	// Value returns the Go value for this value as an any
	Value() any

	// String returns the string representation of this value
	String() string
}

// Script is a compiled substitution expression.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler compiles substitution expression source into a Script.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}
