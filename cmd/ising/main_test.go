package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestParamsCommand(t *testing.T) {
	out, err := execute(t, "params", "--side", "32", "--beta", "0.25", "--device", "serial")
	require.NoError(t, err)
	assert.Contains(t, out, "Lattice")
	assert.Contains(t, out, "32")
	assert.Contains(t, out, "0.25")
	assert.Contains(t, out, "[Runtime]")
	assert.Contains(t, out, "serial")
	assert.Contains(t, out, "Devices: [cpu serial]")
}

func TestRunThenInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("sim:\n  side: 6\n  steps: 99\n  interval: 3\n  seed: 5\n"), 0o644))

	out, err := execute(t, "run",
		"--config", cfgPath,
		"--steps", "7",
		"--print=false",
		"--archive", dir,
		"--run-id", "cli",
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = execute(t, "inspect", "--archive", dir, "--run-id", "cli")
	require.NoError(t, err)
	assert.Equal(t, "0\n3\n6\n", out, "explicit --steps must win over the file")

	out, err = execute(t, "inspect", "--archive", dir, "--run-id", "cli", "--step", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Step 3:\n")
	assert.Equal(t, 1+6, strings.Count(out, "\n"), "header plus six rows")
}

func TestRunRejectsUnknownDevice(t *testing.T) {
	_, err := execute(t, "run", "--device", "tpu", "--steps", "1", "--side", "4", "--log-level", "error")
	require.Error(t, err)
}
