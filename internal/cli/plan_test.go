package cli

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/roach88/nopia/internal/compiler"
)

func TestPlanText(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "lib.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Planned Lib (full): 1 local type(s)")
	assert.Contains(t, out, "interface I from Interop")
	assert.Contains(t, out, "method public M1(): void")
	assert.NotContains(t, out, "M2", "unused trailing slot is pruned")
	assert.Contains(t, out, "0 error(s), 0 warning(s)")
	assert.Contains(t, out, "Plan hash: ")
}

func TestPlanJSON(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "lib.yaml", "--format", "json")
	require.NoError(t, err)
	require.True(t, gjson.Valid(out))

	assert.Equal(t, "ok", gjson.Get(out, "status").String())
	assert.Equal(t, "Lib", gjson.Get(out, "data.name").String())
	assert.Equal(t, "full", gjson.Get(out, "data.mode").String())
	assert.Equal(t, int64(1), gjson.Get(out, "data.local_types.#").Int())
	assert.Equal(t, "I", gjson.Get(out, "data.local_types.0.name").String())
	assert.Equal(t, "M1", gjson.Get(out, "data.local_types.0.shape.members.0.name").String())
	assert.True(t, gjson.Get(out, "data.emittable").Bool())
	assert.Len(t, gjson.Get(out, "data.hash").String(), 64)
}

func TestPlanDeterministic(t *testing.T) {
	e := newTestEnv(t)

	first, err := e.run("plan", "lib.yaml", "--format", "json", "--workers", "1")
	require.NoError(t, err)
	second, err := e.run("plan", "lib.yaml", "--format", "json", "--workers", "8")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPlanDiagnosticsFail(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "struct.yaml", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeDiagnostics)

	assert.Equal(t, "error", gjson.Get(out, "status").String())
	assert.Equal(t, "CS1757", gjson.Get(out, "error.code").String())
	assert.False(t, gjson.Get(out, "data.emittable").Bool())
	assert.Equal(t, "bad.cs", gjson.Get(out, "data.diagnostics.0.location.file").String())
}

func TestPlanDiagnosticsText(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "struct.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Planned Bad")
	assert.Contains(t, out, "error CS1757")
	assert.Contains(t, out, "1 error(s)")
}

func TestPlanMetadataOnlyFlag(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "lib.yaml", "--metadata-only", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "metadata-only", gjson.Get(out, "data.mode").String())
}

func TestPlanInvalidDescription(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "invalid.yaml", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", gjson.Get(out, "status").String())

	codes := gjson.Get(out, "data.errors.#.code").Array()
	require.NotEmpty(t, codes)
	var got []string
	for _, c := range codes {
		got = append(got, c.String())
	}
	assert.Contains(t, got, "E103")
}

func TestPlanMissingDescription(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "nope.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "description not found")
}

func TestPlanUnparsableDescription(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, afero.WriteFile(e.fs, "typo.yaml", []byte("name: X\nmodulez: []\n"), 0o644))

	_, err := e.run("plan", "typo.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeParseFailed)
}

func TestPlanOutputFile(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run("plan", "lib.yaml", "--output", "out/plan.json")
	require.NoError(t, err)

	data, err := afero.ReadFile(e.fs, "out/plan.json")
	require.NoError(t, err)
	var plan map[string]any
	require.NoError(t, json.Unmarshal(data, &plan))
	assert.Equal(t, "Lib", plan["name"])
}

// A use read from a compiled module needs that module as a reference.
func TestPlanOriginWithoutRef(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "app.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrUnresolvedOrigin)
	assert.Contains(t, out, "files[0].uses[1].origin")
}

func TestPlanRefMissingFromStore(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("plan", "app.yaml", "--ref", "Lib")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeStore)
	assert.Contains(t, out, "module not found")
}
