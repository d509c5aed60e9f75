package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAndPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracewell.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target_files:
  - "src/**/*.py"
exclude_functions:
  - noisy
line_ranges:
  "a.py":
    lo: 10
    hi: 20
ignore_system_paths: true
include_stdlibs:
  - json
enable_var_trace: true
start_function: "a.py:5"
source_base_dir: ${TRACEWELL_BASE:-/work}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"src/**/*.py"}, cfg.TargetFiles)
	require.Equal(t, "/work", cfg.SourceBaseDir)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	require.True(t, policy.ExcludeFunctions["noisy"])
	require.Equal(t, uint32(10), policy.LineRanges["a.py"].Lo)
	require.NotNil(t, policy.StartFunction)
	require.Equal(t, "a.py", policy.StartFunction.File)
	require.Equal(t, uint32(5), policy.StartFunction.Line)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracewell.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogus_field: true\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/tracewell.yaml")
	require.Error(t, err)
}
