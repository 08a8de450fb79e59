package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-autoprof/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewConfigCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitThenView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "init", "--config", path)
	assert.Error(t, err, "refuses to overwrite")

	_, err = execute(t, "init", "--config", path, "--force")
	require.NoError(t, err)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), loaded)

	t.Setenv("CORAL_AUTOPROF_PROFILER_CPU_THRESHOLD", "91")
	out, err = execute(t, "view", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "threshold: 91")
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("profiler:\n  duration: 30s\n"), 0600))
	out, err := execute(t, "validate", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("profiler:\n  sampling:\n    overhead: 2\n"), 0600))
	_, err = execute(t, "validate", "--config", bad)
	assert.Error(t, err)
}
