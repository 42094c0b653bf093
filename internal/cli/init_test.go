package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/devsync/internal/config"
)

func TestInitCommand_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)

	_, stderr, err := executeCommand("init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Wrote "+path)

	cfg, err := config.Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultProject(), cfg.Project)
}

func TestInitCommand_UpToDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)

	_, _, err := executeCommand("init", "-o", path)
	require.NoError(t, err)

	_, stderr, err := executeCommand("init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "up to date")
}

func TestInitCommand_ExistingPrintsDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("addr: localhost:8080\n"), 0o644)) //nolint:gosec // test

	stdout, _, err := executeCommand("init", "--no-color", "-o", path)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, err.Error(), "--force")

	assert.Contains(t, stdout, "--- "+path)
	assert.Contains(t, stdout, "-addr: localhost:8080")
	assert.Contains(t, stdout, "+src: ./src")
	assert.NotContains(t, stdout, "\033[")

	got, err := os.ReadFile(path) //nolint:gosec // test
	require.NoError(t, err)
	assert.Equal(t, "addr: localhost:8080\n", string(got), "file must be left untouched")
}

func TestInitCommand_Force(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("addr: localhost:8080\n"), 0o644)) //nolint:gosec // test

	_, _, err := executeCommand("init", "--force", "-o", path)
	require.NoError(t, err)

	got, err := os.ReadFile(path) //nolint:gosec // test
	require.NoError(t, err)
	assert.Contains(t, string(got), "addr: localhost:3000")
}
