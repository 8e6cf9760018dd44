package harness

import (
	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/runner"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held and no backend failed
	// unexpectedly.
	Pass bool `json:"pass"`

	// Compiled holds the successful compilations by backend.
	Compiled map[backend.ID]*backend.CompilationResult `json:"compiled"`

	// CompileErrors holds the failed compilations by backend.
	CompileErrors map[backend.ID]error `json:"-"`

	// Rows is the executed sqlite result, when the scenario has fixtures.
	Rows *runner.Rows `json:"rows,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Compiled:      make(map[backend.ID]*backend.CompilationResult),
		CompileErrors: make(map[backend.ID]error),
		Errors:        []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
