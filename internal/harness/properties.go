package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

// PropertyError is returned when a scenario violates a whole-run property
// rather than one of its own assertions.
type PropertyError struct {
	Property string
	Step     int
	Detail   string
}

// Error implements the error interface.
func (e *PropertyError) Error() string {
	return fmt.Sprintf("property %s violated at step %d: %s", e.Property, e.Step, e.Detail)
}

// Property names.
const (
	PropertyDeterminism    = "determinism"
	PropertyIdempotentEmit = "idempotent_emit"
)

// CheckDeterminism runs the scenario once per worker count and requires
// every run to produce the same plans: same local types and handles, same
// identity map, same diagnostics in the same order, same plan hash.
func CheckDeterminism(ctx context.Context, fs afero.Fs, scenario *Scenario, workers []int, opts ...Option) error {
	var (
		base      *Result
		baseCount int
	)
	for _, n := range workers {
		result, err := runOnce(ctx, fs, scenario, append(slices.Clone(opts), WithWorkers(n))...)
		if err != nil {
			return err
		}
		if base == nil {
			base, baseCount = result, n
			continue
		}
		for i := range base.Steps {
			want, got := base.Steps[i].Plan, result.Steps[i].Plan
			if diff := cmp.Diff(want, got); diff != "" {
				return &PropertyError{
					Property: PropertyDeterminism,
					Step:     i,
					Detail:   fmt.Sprintf("workers %d vs %d (-want +got):\n%s", baseCount, n, diff),
				}
			}
		}
	}
	return nil
}

// CheckIdempotentEmit runs the scenario and then writes every emitted image
// a second time. A rewrite of an unchanged image must leave the store as it
// was.
func CheckIdempotentEmit(ctx context.Context, fs afero.Fs, scenario *Scenario, opts ...Option) error {
	h, err := newHarness(fs, opts...)
	if err != nil {
		return err
	}
	defer h.close()

	result, err := h.run(ctx, scenario)
	if err != nil {
		return err
	}
	for i, sr := range result.Steps {
		if !sr.Written {
			continue
		}
		written, err := h.store.WriteImage(ctx, sr.Plan.Image(), sr.Plan.Hash)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if written {
			return &PropertyError{
				Property: PropertyIdempotentEmit,
				Step:     i,
				Detail:   fmt.Sprintf("image of %s rewritten with unchanged hash %.12s", sr.Plan.Name, sr.Plan.Hash),
			}
		}
	}
	return nil
}

func runOnce(ctx context.Context, fs afero.Fs, scenario *Scenario, opts ...Option) (*Result, error) {
	h, err := newHarness(fs, opts...)
	if err != nil {
		return nil, err
	}
	defer h.close()
	return h.run(ctx, scenario)
}

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

func (r *SuiteResult) fail(path, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{ScenarioPath: path, Error: msg})
}

// DefaultWorkerCounts are the discovery worker counts RunDir compares.
var DefaultWorkerCounts = []int{1, 4}

// RunDir loads every *.yaml scenario in dir, runs it, and checks the
// determinism and idempotent emit properties. Scenarios run in lexical order
// of their file names.
//
// For each scenario:
// 1. Load and validate the scenario
// 2. Run it and evaluate its assertions
// 3. Check that plans are identical across worker counts
// 4. Check that re-emitting unchanged images is a no-op
func RunDir(ctx context.Context, fs afero.Fs, dir string, opts ...Option) (*SuiteResult, error) {
	paths, err := afero.Glob(fs, filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	slices.Sort(paths)

	result := &SuiteResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.TotalScenarios++

		scenario, err := LoadScenario(fs, path)
		if err != nil {
			result.fail(path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := Run(ctx, fs, scenario, opts...)
		if err != nil {
			result.fail(path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		if !run.Pass {
			result.fail(path, fmt.Sprintf("scenario assertions failed: %v", run.Errors))
			continue
		}

		if err := CheckDeterminism(ctx, fs, scenario, DefaultWorkerCounts, opts...); err != nil {
			result.fail(path, err.Error())
			continue
		}
		if err := CheckIdempotentEmit(ctx, fs, scenario, opts...); err != nil {
			result.fail(path, err.Error())
			continue
		}

		result.Passed++
	}
	return result, nil
}
