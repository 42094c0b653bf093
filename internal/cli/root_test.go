package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand is a test helper that runs the CLI with the given args and
// captures both stdout and stderr.
func executeCommand(args ...string) (stdout, stderr string, err error) {
	return executeCommandContext(context.Background(), args...)
}

// executeCommandContext is executeCommand with a caller-controlled context,
// used for long-running commands.
func executeCommandContext(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := NewRootCommand()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(ctx)

	return outBuf.String(), errBuf.String(), err
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "devsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644)) //nolint:gosec // test

	return path
}

// ---------------------------------------------------------------------------
// Help output
// ---------------------------------------------------------------------------

func TestRootCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("--help")
	require.NoError(t, err)

	for _, sub := range []string{"build", "dev", "init", "version", "completion"} {
		assert.Contains(t, stdout, sub, "help should mention %q subcommand", sub)
	}

	for _, flag := range []string{"--config", "--log-level", "--log-format", "--no-color", "--quiet"} {
		assert.Contains(t, stdout, flag, "help should mention %q flag", flag)
	}
}

func TestBuildCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("build", "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--entry", "--outdir", "--build-dir", "--watch", "--sourcemap", "--minify", "--elm", "--metafile"} {
		assert.Contains(t, stdout, flag)
	}
}

func TestDevCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("dev", "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--src", "--build-dir", "--command", "--addr", "--open", "--debounce"} {
		assert.Contains(t, stdout, flag)
	}
}

// ---------------------------------------------------------------------------
// Unknown flags → exit code 2
// ---------------------------------------------------------------------------

func TestRootCommand_UnknownFlag(t *testing.T) {
	_, _, err := executeCommand("--nonexistent")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestRootCommand_SilenceErrors(t *testing.T) {
	_, stderr, err := executeCommand("--nonexistent")
	require.Error(t, err)
	assert.Empty(t, stderr, "cobra should not print errors to stderr (SilenceErrors)")
}

// ---------------------------------------------------------------------------
// Config errors → exit code 2
// ---------------------------------------------------------------------------

func TestRootCommand_InvalidConfig(t *testing.T) {
	_, _, err := executeCommand("--config", "/nonexistent/path.yaml", "build")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	_, _, err := executeCommand("--log-level", "trace", "build")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestRootCommand_InvalidLogFormat(t *testing.T) {
	_, _, err := executeCommand("--log-format", "xml", "build")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestRootCommand_InvalidProjectConfig(t *testing.T) {
	path := writeConfig(t, "debounce: -1s\n")

	_, _, err := executeCommand("--config", path, "dev")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "debounce")
}

// ---------------------------------------------------------------------------
// Exit code mapping
// ---------------------------------------------------------------------------

func TestRun_Success(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"version"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	assert.Equal(t, 0, run(cmd))
}

func TestRun_PrintsErrorAndCode(t *testing.T) {
	cmd := NewRootCommand()
	errBuf := new(bytes.Buffer)
	cmd.SetArgs([]string{"--log-level", "trace", "build"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(errBuf)

	assert.Equal(t, 2, run(cmd))
	assert.Contains(t, errBuf.String(), "Error: invalid log level")
}

func TestRun_PlainErrorIsExitCode1(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"version", "extra"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	assert.Equal(t, 1, run(cmd))
}

// ---------------------------------------------------------------------------
// ExitError
// ---------------------------------------------------------------------------

func TestExitError_ErrorWithMessage(t *testing.T) {
	err := &ExitError{Code: 1, Err: assert.AnError}
	assert.Contains(t, err.Error(), assert.AnError.Error())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestExitError_ErrorWithoutMessage(t *testing.T) {
	err := &ExitError{Code: 42}
	assert.Equal(t, "exit code 42", err.Error())
	assert.Nil(t, err.Unwrap())
}

// ---------------------------------------------------------------------------
// Completion command
// ---------------------------------------------------------------------------

func TestCompletion_Shells(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			stdout, _, err := executeCommand("completion", shell)
			require.NoError(t, err)
			assert.Contains(t, stdout, "devsync")
		})
	}
}

func TestCompletion_EveryShellHasScript(t *testing.T) {
	assert.Len(t, completionScripts, len(completionShells))

	for _, shell := range completionShells {
		assert.Contains(t, completionScripts, shell)
	}
}

func TestCompletion_SkipsConfigLoading(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log-level: [unclosed"), 0o644))

	stdout, _, err := executeCommand("--config", cfgPath, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, stdout, "devsync")
}

func TestCompletion_InvalidShell(t *testing.T) {
	_, _, err := executeCommand("completion", "invalid")
	require.Error(t, err)
}

func TestCompletion_NoArgs(t *testing.T) {
	_, _, err := executeCommand("completion")
	require.Error(t, err)
}
