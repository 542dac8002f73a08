package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEmitWritesImage(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("emit", "lib.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Emitted Lib: 1 local type(s)")

	out, err = e.run("emit", "lib.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Lib unchanged")
}

func TestEmitJSON(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run("emit", "lib.yaml", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "Lib", gjson.Get(out, "data.module").String())
	assert.True(t, gjson.Get(out, "data.written").Bool())
	assert.Equal(t, int64(1), gjson.Get(out, "data.local_types").Int())
}

func TestEmitRefusesPlanWithErrors(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.run("emit", "lib.yaml")
	require.NoError(t, err)

	_, err = e.run("emit", "struct.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := e.run("inspect", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, []any{"Lib"}, gjson.Get(out, "data.#.name").Value())
}

// The application references the emitted library; its clone of I and the
// library's clone converge on one handle.
func TestEmitThenReference(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run("emit", "lib.yaml")
	require.NoError(t, err)

	out, err := e.run("plan", "app.yaml", "--ref", "Lib", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gjson.Get(out, "data.diagnostics.#").Int())
	require.Equal(t, int64(1), gjson.Get(out, "data.resolutions.#").Int())
	assert.Equal(t, "resolved", gjson.Get(out, "data.resolutions.0.outcome").String())
	assert.Equal(t,
		gjson.Get(out, "data.local_types.0.handle").String(),
		gjson.Get(out, "data.resolutions.0.handle").String())

	_, err = e.run("emit", "app.yaml", "--ref", "Lib")
	require.NoError(t, err)

	out, err = e.run("inspect", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, []any{"App", "Lib"}, gjson.Get(out, "data.#.name").Value())
}
