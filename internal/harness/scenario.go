package harness

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: a sequence of compilations that
// share one image store, and assertions over the resulting plans.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are compiled in order. A step may reference images emitted by
	// earlier steps.
	Steps []Step `yaml:"steps"`

	// Assertions validate the plans.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one compilation.
type Step struct {
	// Description is the path of the YAML or CUE compilation description,
	// relative to the scenario file.
	Description string `yaml:"description"`

	// Refs names compiled modules to read back from the store.
	Refs []string `yaml:"refs,omitempty"`

	// Emit writes the image to the store when the plan is emittable.
	Emit bool `yaml:"emit,omitempty"`

	// Mode overrides the description's build mode ("full" or "metadata-only").
	Mode string `yaml:"mode,omitempty"`
}

// Assertion validates the plan of one step.
type Assertion struct {
	// Type specifies the assertion type:
	// - "local_types": the plan embeds exactly Names (qualified, in order)
	// - "members": the clone of Name retains exactly Names as members
	// - "diagnostic": a diagnostic with Code (and Args, when given) is reported
	// - "no_diagnostics": nothing is reported
	// - "resolution": the foreign clone Name resolves with Outcome
	// - "lowered": a construct lowered for Name contains every Contains line
	// - "emittable": the plan's Emittable flag equals Value
	Type string `yaml:"type"`

	// Step is the index of the step the assertion applies to. Defaults to
	// the last step.
	Step *int `yaml:"step,omitempty"`

	Name     string   `yaml:"name,omitempty"`
	Names    []string `yaml:"names,omitempty"`
	Code     string   `yaml:"code,omitempty"`
	Severity string   `yaml:"severity,omitempty"`
	Args     []string `yaml:"args,omitempty"`
	Outcome  string   `yaml:"outcome,omitempty"`
	Contains []string `yaml:"contains,omitempty"`
	Value    *bool    `yaml:"value,omitempty"`

	// Count is the expected number of matching diagnostics (used by
	// diagnostic). Zero means at least one.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertLocalTypes    = "local_types"
	AssertMembers       = "members"
	AssertDiagnostic    = "diagnostic"
	AssertNoDiagnostics = "no_diagnostics"
	AssertResolution    = "resolution"
	AssertLowered       = "lowered"
	AssertEmittable     = "emittable"
)

// LoadScenario reads and parses a scenario YAML file. Description paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenario(fs afero.Fs, path string) (*Scenario, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, step := range scenario.Steps {
		if step.Description != "" && !filepath.IsAbs(step.Description) {
			scenario.Steps[i].Description = filepath.Join(base, step.Description)
		}
	}

	if err := validateScenario(fs, &scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(fs afero.Fs, s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Description == "" {
			return fmt.Errorf("steps[%d]: description is required", i)
		}
		if ok, _ := afero.Exists(fs, step.Description); !ok {
			return fmt.Errorf("steps[%d]: description file not found: %s", i, step.Description)
		}
		switch step.Mode {
		case "", "full", "metadata-only":
		default:
			return fmt.Errorf("steps[%d]: unknown mode %q", i, step.Mode)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, len(s.Steps), &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index, steps int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Step != nil && (*a.Step < 0 || *a.Step >= steps) {
		return fmt.Errorf("assertions[%d]: step %d out of range", index, *a.Step)
	}

	switch a.Type {
	case AssertLocalTypes, AssertNoDiagnostics:
	case AssertMembers:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for members", index)
		}
	case AssertDiagnostic:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for diagnostic", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for diagnostic", index)
		}
	case AssertResolution:
		if a.Name == "" || a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: name and outcome are required for resolution", index)
		}
	case AssertLowered:
		if a.Name == "" || len(a.Contains) == 0 {
			return fmt.Errorf("assertions[%d]: name and contains are required for lowered", index)
		}
	case AssertEmittable:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for emittable", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// stepIndex returns the step an assertion applies to.
func (a *Assertion) stepIndex(steps int) int {
	if a.Step != nil {
		return *a.Step
	}
	return steps - 1
}
