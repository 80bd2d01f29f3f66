package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ExitCodes(t *testing.T) {
	testChdir(t, t.TempDir())

	assert.Equal(t, 0, run([]string{"--version"}))
	assert.Equal(t, 0, run([]string{"--help"}))
	assert.Equal(t, 2, run([]string{"--no-such-flag"}))

	// No config file means no endpoints, which is fatal.
	assert.Equal(t, 1, run(nil))
	assert.Equal(t, 1, run([]string{"--config", "missing.toml"}))
}

func TestRun_StorageFailure(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)

	cfg := "[[rpc.endpoints]]\nurl = \"http://127.0.0.1:1\"\nnickname = \"local\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644))

	// A regular file where the data directory should be.
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))

	assert.Equal(t, 1, run([]string{"--data-dir", blocked, "--log-level", "error"}))
}

// testChdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
