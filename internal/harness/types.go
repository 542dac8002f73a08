package harness

import (
	"github.com/roach88/nopia/internal/pipeline"
)

// StepResult is the outcome of one compilation step.
type StepResult struct {
	// Description is the resolved description path.
	Description string `json:"description"`

	Plan *pipeline.Plan `json:"plan"`

	// Written reports whether the step stored a new image.
	Written bool `json:"written"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
