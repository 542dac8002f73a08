package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/pipeline"
)

// AssertionError is returned when an assertion fails.
// It includes the plan's diagnostics to help debug the failure.
type AssertionError struct {
	Type        string // Assertion type for categorization
	Step        int
	Expected    string
	Actual      string
	Diagnostics []diag.Diagnostic
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (step %d)\n", e.Type, e.Step)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Diagnostics) > 0 {
		fmt.Fprintf(&buf, "\nDiagnostics:\n")
		for i, d := range e.Diagnostics {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, d)
		}
	}

	return buf.String()
}

func fail(a Assertion, step int, plan *pipeline.Plan, expected, actual string) error {
	return &AssertionError{
		Type:        a.Type,
		Step:        step,
		Expected:    expected,
		Actual:      actual,
		Diagnostics: plan.Diagnostics,
	}
}

// assertLocalTypes checks the exact list of embedded types.
func assertLocalTypes(plan *pipeline.Plan, a Assertion, step int) error {
	got := make([]string, len(plan.LocalTypes))
	for i, lt := range plan.LocalTypes {
		got[i] = lt.QualifiedName()
	}
	if slices.Equal(got, a.Names) || (len(got) == 0 && len(a.Names) == 0) {
		return nil
	}
	return fail(a, step, plan, fmt.Sprintf("local types %v", a.Names), fmt.Sprintf("%v", got))
}

// assertMembers checks the retained members of one clone, gaps included.
func assertMembers(plan *pipeline.Plan, a Assertion, step int) error {
	lt, ok := plan.LocalType(a.Name)
	if !ok {
		return fail(a, step, plan, fmt.Sprintf("local type %s", a.Name), "not embedded")
	}
	got := make([]string, len(lt.Shape.Members))
	for i, m := range lt.Shape.Members {
		got[i] = m.Name
	}
	if slices.Equal(got, a.Names) || (len(got) == 0 && len(a.Names) == 0) {
		return nil
	}
	return fail(a, step, plan, fmt.Sprintf("%s members %v", a.Name, a.Names), fmt.Sprintf("%v", got))
}

// assertDiagnostic checks that a diagnostic with the code is reported.
// Args and Severity narrow the match when given; Count pins the number of
// matches.
func assertDiagnostic(plan *pipeline.Plan, a Assertion, step int) error {
	matches := 0
	for _, d := range plan.Diagnostics {
		if string(d.Code) != a.Code {
			continue
		}
		if a.Severity != "" && string(d.Severity) != a.Severity {
			continue
		}
		if a.Args != nil && !slices.Equal(d.Args, a.Args) {
			continue
		}
		matches++
	}

	expected := a.Code
	if a.Args != nil {
		expected += fmt.Sprintf(" %v", a.Args)
	}
	switch {
	case a.Count > 0 && matches != a.Count:
		return fail(a, step, plan, fmt.Sprintf("%d x %s", a.Count, expected), fmt.Sprintf("%d match(es)", matches))
	case matches == 0:
		return fail(a, step, plan, expected, "not reported")
	}
	return nil
}

func assertNoDiagnostics(plan *pipeline.Plan, a Assertion, step int) error {
	if len(plan.Diagnostics) == 0 {
		return nil
	}
	return fail(a, step, plan, "no diagnostics", fmt.Sprintf("%d diagnostic(s)", len(plan.Diagnostics)))
}

// assertResolution checks the outcome recorded for a foreign clone. A
// resolved clone must share its handle with the local type it converged on.
func assertResolution(plan *pipeline.Plan, a Assertion, step int) error {
	for _, r := range plan.Resolutions {
		if r.Ref.Name != a.Name {
			continue
		}
		if string(r.Outcome) != a.Outcome {
			return fail(a, step, plan, fmt.Sprintf("%s %s", a.Name, a.Outcome), string(r.Outcome))
		}
		if r.Handle == "" {
			return nil
		}
		for _, lt := range plan.LocalTypes {
			if lt.Handle == r.Handle {
				return nil
			}
		}
		return fail(a, step, plan, fmt.Sprintf("%s converges on a local type", a.Name),
			fmt.Sprintf("handle %s not embedded", r.Handle.Short()))
	}
	return fail(a, step, plan, fmt.Sprintf("%s %s", a.Name, a.Outcome), "no resolution recorded")
}

// assertLowered checks that a construct lowered for the type contains every
// expected instruction.
func assertLowered(plan *pipeline.Plan, a Assertion, step int) error {
	for _, l := range plan.Lowered {
		if l.Type != a.Name {
			continue
		}
		listing := strings.Split(l.Listing(), "\n")
		missing := ""
		for _, want := range a.Contains {
			if !slices.Contains(listing, want) {
				missing = want
				break
			}
		}
		if missing == "" {
			return nil
		}
	}
	return fail(a, step, plan, fmt.Sprintf("%s lowered with %q", a.Name, a.Contains),
		fmt.Sprintf("%d lowered construct(s) without a match", len(plan.Lowered)))
}

func assertEmittable(plan *pipeline.Plan, a Assertion, step int) error {
	if plan.Emittable == *a.Value {
		return nil
	}
	return fail(a, step, plan, fmt.Sprintf("emittable=%t", *a.Value), fmt.Sprintf("emittable=%t", plan.Emittable))
}

// EvaluateAssertions evaluates every assertion against the step results.
// Returns the failure messages; an empty slice means all assertions passed.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		step := a.stepIndex(len(result.Steps))
		if step < 0 || step >= len(result.Steps) {
			errs = append(errs, fmt.Sprintf("assertion %d: step %d out of range", i, step))
			continue
		}
		plan := result.Steps[step].Plan

		var err error
		switch a.Type {
		case AssertLocalTypes:
			err = assertLocalTypes(plan, a, step)
		case AssertMembers:
			err = assertMembers(plan, a, step)
		case AssertDiagnostic:
			err = assertDiagnostic(plan, a, step)
		case AssertNoDiagnostics:
			err = assertNoDiagnostics(plan, a, step)
		case AssertResolution:
			err = assertResolution(plan, a, step)
		case AssertLowered:
			err = assertLowered(plan, a, step)
		case AssertEmittable:
			if a.Value == nil {
				err = fmt.Errorf("value is required for emittable")
				break
			}
			err = assertEmittable(plan, a, step)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %s", i, err))
		}
	}
	return errs
}
