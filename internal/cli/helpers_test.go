package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const interopYAML = `
modules:
  - name: Interop
    guid: 00000000-0000-0000-0000-000000000001
    imported_from_typelib: true
    types:
      - name: I
        kind: interface
        guid: 00000000-0000-0000-0000-000000000010
        members:
          - {name: M1, kind: method}
          - {name: M2, kind: method}
      - name: S
        kind: struct
        members:
          - {name: F, kind: field, type: int, access: private}
`

const libYAML = "name: Lib\n" + interopYAML + `
files:
  - path: lib.cs
    uses:
      - {type: "Interop:I", member: M1, line: 1}
`

const appYAML = "name: App\n" + interopYAML + `
files:
  - path: app.cs
    uses:
      - {type: "Interop:I", member: M2, line: 1}
      - {type: "~Lib:I", origin: Lib, line: 2}
`

const structYAML = "name: Bad\n" + interopYAML + `
files:
  - path: bad.cs
    uses:
      - {type: "Interop:S", line: 7}
`

const invalidYAML = `
name: Broken
modules:
  - name: Interop
    types:
      - {name: X, kind: bogus}
`

// testEnv is an in-memory description filesystem plus an on-disk store.
type testEnv struct {
	fs    afero.Fs
	store string
	env   map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"lib.yaml":     libYAML,
		"app.yaml":     appYAML,
		"struct.yaml":  structYAML,
		"invalid.yaml": invalidYAML,
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return &testEnv{
		fs:    fs,
		store: filepath.Join(t.TempDir(), "nopia.db"),
		env:   map[string]string{},
	}
}

// run executes the root command with --store pointing at the test store.
func (e *testEnv) run(args ...string) (string, error) {
	opts := &RootOptions{
		Fs: e.fs,
		LookupEnv: func(key string) (string, bool) {
			v, ok := e.env[key]
			return v, ok
		},
	}
	cmd := newRootCommand(opts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--store", e.store}, args...))
	err := cmd.Execute()
	return buf.String(), err
}
