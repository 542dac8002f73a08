package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"

	"github.com/roach88/nopia/internal/ir"
)

// Snapshot captures what a scenario planned, step by step.
//
// Handles and plan hashes are left out: they are covered by the determinism
// properties, and keeping them out lets a golden file be read and reviewed
// as a description of the clones.
type Snapshot struct {
	ScenarioName string
	Steps        []StepResult
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR values and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, sr := range s.Steps {
		p := sr.Plan

		types := make([]any, len(p.LocalTypes))
		for j, lt := range p.LocalTypes {
			members := make([]string, len(lt.Shape.Members))
			for k, m := range lt.Shape.Members {
				members[k] = m.Signature()
			}
			types[j] = map[string]any{
				"name":       lt.QualifiedName(),
				"kind":       string(lt.Kind),
				"source":     lt.SourceModule,
				"attributes": lt.Attributes,
				"members":    members,
			}
		}

		resolutions := make([]any, len(p.Resolutions))
		for j, r := range p.Resolutions {
			resolutions[j] = map[string]any{
				"name":    r.Ref.Name,
				"from":    r.Ref.EmbeddingModule,
				"outcome": string(r.Outcome),
				"module":  r.Module,
			}
		}

		lowered := make([]any, len(p.Lowered))
		for j, l := range p.Lowered {
			code := make([]string, len(l.Code))
			for k, in := range l.Code {
				code[k] = in.String()
			}
			lowered[j] = map[string]any{
				"kind":     string(l.Kind),
				"type":     l.Type,
				"location": l.Location.String(),
				"code":     code,
			}
		}

		diags := make([]any, len(p.Diagnostics))
		for j, d := range p.Diagnostics {
			diags[j] = map[string]any{
				"code":     string(d.Code),
				"severity": string(d.Severity),
				"location": d.Location.String(),
				"args":     d.Args,
			}
		}

		steps[i] = map[string]any{
			"module":      p.Name,
			"mode":        string(p.Mode),
			"emittable":   p.Emittable,
			"written":     sr.Written,
			"local_types": types,
			"resolutions": resolutions,
			"lowered":     lowered,
			"diagnostics": diags,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be executed. A snapshot mismatch
// fails the test through goldie.
func RunWithGolden(t *testing.T, fs afero.Fs, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), fs, scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already executed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: scenarioName, Steps: result.Steps}
	data, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
