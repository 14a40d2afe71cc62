package types

import "fmt"

// CompileError reports a pattern that the compiler rejected.
type CompileError struct {
	Message    string // compiler message
	Expression int    // index of the offending pattern, -1 when not attributable
}

func (e *CompileError) Error() string {
	if e.Expression < 0 {
		return fmt.Sprintf("compile error: %s", e.Message)
	}
	return fmt.Sprintf("compile error: pattern #%d: %s", e.Expression, e.Message)
}
