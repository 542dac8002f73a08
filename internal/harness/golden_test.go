package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"activation", "convergence", "rejections"} {
		t.Run(name, func(t *testing.T) {
			fs, scenario := loadTestdata(t, name)

			result, err := RunWithGolden(t, fs, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	fs, scenario := loadTestdata(t, "activation")

	result, err := Run(t.Context(), fs, scenario, WithWorkers(1))
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, "activation", result))
}

func TestSnapshotCanonical(t *testing.T) {
	fs, scenario := loadTestdata(t, "convergence")

	first, err := Run(t.Context(), fs, scenario)
	require.NoError(t, err)
	second, err := Run(t.Context(), fs, scenario)
	require.NoError(t, err)

	a := Snapshot{ScenarioName: scenario.Name, Steps: first.Steps}
	b := Snapshot{ScenarioName: scenario.Name, Steps: second.Steps}
	aJSON, err := a.MarshalCanonical()
	require.NoError(t, err)
	bJSON, err := b.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(aJSON), string(bJSON))

	doc := string(aJSON)
	assert.Equal(t, "convergence", gjson.Get(doc, "scenario_name").String())
	assert.Equal(t, int64(2), gjson.Get(doc, "steps.#").Int())
	assert.Equal(t, "resolved", gjson.Get(doc, "steps.1.resolutions.0.outcome").String())
	assert.Equal(t, []any{"method public M1(): void", "method public M2(): void"},
		gjson.Get(doc, "steps.1.local_types.0.members").Value())
	assert.False(t, gjson.Get(doc, "steps.0.local_types.0.handle").Exists(), "handles are not snapshotted")
	assert.NotContains(t, doc, first.Steps[0].Plan.Hash)
}
