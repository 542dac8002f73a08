package harness

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/resolver"
)

func loadTestdata(t *testing.T, name string) (afero.Fs, *Scenario) {
	t.Helper()
	fs := afero.NewOsFs()
	scenario, err := LoadScenario(fs, filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return fs, scenario
}

func TestRun_Activation(t *testing.T) {
	fs, scenario := loadTestdata(t, "activation")

	result, err := Run(context.Background(), fs, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Steps, 1)
	step := result.Steps[0]
	assert.True(t, step.Written)
	assert.Equal(t, "App", step.Plan.Name)
	require.Len(t, step.Plan.Lowered, 1)
	assert.Len(t, step.Plan.Lowered[0].Code, 8)
}

func TestRun_Convergence(t *testing.T) {
	fs, scenario := loadTestdata(t, "convergence")

	result, err := Run(context.Background(), fs, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Steps, 2)
	lib, app := result.Steps[0], result.Steps[1]
	assert.True(t, lib.Written)
	assert.False(t, app.Written, "the second step does not emit")

	require.Len(t, app.Plan.Resolutions, 1)
	res := app.Plan.Resolutions[0]
	assert.Equal(t, resolver.Resolved, res.Outcome)
	assert.Equal(t, "Lib", res.Ref.EmbeddingModule)
	assert.Equal(t, lib.Plan.LocalTypes[0].Handle, res.Handle, "both modules converge on one handle")
}

func TestRun_Rejections(t *testing.T) {
	fs, scenario := loadTestdata(t, "rejections")

	result, err := Run(context.Background(), fs, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	for _, step := range result.Steps {
		assert.False(t, step.Written, "a plan with errors is never stored")
		assert.False(t, step.Plan.Emittable)
	}
	assert.Equal(t, diag.BuildMetadataOnly, result.Steps[1].Plan.Mode)
}

func TestRun_FailingAssertions(t *testing.T) {
	fs := scenarioFs(t, `
name: failing
description: "assertions that do not hold"
steps:
  - description: descriptions/app.yaml
assertions:
  - type: local_types
    names: [J]
  - type: no_diagnostics
  - type: members
    name: I
    names: [M1]
`)
	scenario, err := LoadScenario(fs, "/work/test.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), fs, scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertion 0")
	assert.Contains(t, result.Errors[0], "local types [J]")
}

func TestRun_MissingRef(t *testing.T) {
	fs := scenarioFs(t, `
name: missing_ref
description: "a ref that no step emitted"
steps:
  - description: descriptions/app.yaml
    refs: [Lib]
assertions:
  - type: no_diagnostics
`)
	scenario, err := LoadScenario(fs, "/work/test.yaml")
	require.NoError(t, err)

	_, err = Run(context.Background(), fs, scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0")
	assert.Contains(t, err.Error(), "module not found")
}

func TestRun_InvalidDescription(t *testing.T) {
	fs := scenarioFs(t, `
name: invalid
description: "the description does not validate"
steps:
  - description: descriptions/bad.yaml
assertions:
  - type: no_diagnostics
`)
	require.NoError(t, afero.WriteFile(fs, "/work/descriptions/bad.yaml", []byte(`
name: Bad
modules:
  - name: Interop
    types:
      - {name: X, kind: bogus}
`), 0o644))
	scenario, err := LoadScenario(fs, "/work/test.yaml")
	require.NoError(t, err)

	_, err = Run(context.Background(), fs, scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0")
}

func TestRun_Logs(t *testing.T) {
	fs, scenario := loadTestdata(t, "convergence")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	_, err := Run(context.Background(), fs, scenario, WithLogger(logger), WithWorkers(2))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "step completed")
	assert.Contains(t, buf.String(), "module=Lib")
	assert.Contains(t, buf.String(), "module=App")
}

func TestRun_Canceled(t *testing.T) {
	fs, scenario := loadTestdata(t, "activation")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, fs, scenario)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
