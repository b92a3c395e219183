package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeProgram(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "prog.json", `{
		"declarations": [
			{"kind": "import", "namespace": "default"},
			{"kind": "let", "name": "a", "rhs": {
				"kind": "app",
				"callee": {"kind": "identifier", "name": "addition"},
				"args": [{"kind": "number", "value": 2}, {"kind": "number", "value": 3}]
			}}
		],
		"goals": [
			{"kind": "print", "label": "a", "expr": {"kind": "identifier", "name": "a"}}
		]
	}`)

	code := run([]string{"run", "--store", filepath.Join(dir, "store.db"), path})
	require.Equal(t, 0, code)
}

func TestRun_UsageErrorOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	code := run([]string{"run", "--store", filepath.Join(dir, "store.db"), filepath.Join(dir, "nope.json")})
	require.Equal(t, 2, code)
}

func TestRun_ExecutionErrorOnUnboundIdentifier(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "prog.json", `{
		"declarations": [{"kind": "import", "namespace": "default"}],
		"goals": [{"kind": "print", "label": "x", "expr": {"kind": "identifier", "name": "nope"}}]
	}`)

	code := run([]string{"run", "--store", filepath.Join(dir, "store.db"), path})
	require.Equal(t, 1, code)
}

func TestRun_ExecutionErrorOnGoalFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "prog.json", `{
		"declarations": [
			{"kind": "import", "namespace": "default"},
			{"kind": "let", "name": "bad", "rhs": {
				"kind": "app",
				"callee": {"kind": "identifier", "name": "division"},
				"args": [{"kind": "number", "value": 1}, {"kind": "number", "value": 0}]
			}}
		],
		"goals": [{"kind": "print", "label": "bad", "expr": {"kind": "identifier", "name": "bad"}}]
	}`)

	code := run([]string{"run", "--store", filepath.Join(dir, "store.db"), path})
	require.Equal(t, 1, code)
}

func TestRun_UsageErrorOnUnknownStrategy(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "prog.json", `{"declarations":[],"goals":[]}`)

	code := run([]string{"run", "--strategy", "bogus", "--store", filepath.Join(dir, "store.db"), path})
	require.Equal(t, 2, code)
}

func TestRun_Version(t *testing.T) {
	code := run([]string{"version"})
	require.Equal(t, 0, code)
}

func TestRepl_AccumulatesDeclarationsAcrossLines(t *testing.T) {
	dir := t.TempDir()
	flags := &cliFlags{storePath: filepath.Join(dir, "store.db"), strategy: "deferred"}

	input := bytes.NewBufferString(
		`{"declarations":[{"kind":"import","namespace":"default"},{"kind":"let","name":"a","rhs":{"kind":"number","value":41}}],"goals":[]}` + "\n" +
			`{"declarations":[],"goals":[{"kind":"print","label":"a","expr":{"kind":"identifier","name":"a"}}]}` + "\n",
	)
	var stdout, stderr bytes.Buffer

	err := runRepl(flags, nil, input, &stdout, &stderr)
	require.NoError(t, err)
	require.Empty(t, stderr.String())
	require.Contains(t, stdout.String(), "computed=")
}
