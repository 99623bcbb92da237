//go:build !windows

package bash

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Run(t *testing.T) {
	runner := NewRunner(nil)

	t.Run("success", func(t *testing.T) {
		assert.NoError(t, runner.Run(context.Background(), "true"))
	})

	t.Run("non-zero exit is an ExitError", func(t *testing.T) {
		err := runner.Run(context.Background(), "sh", "-c", "exit 3")
		require.Error(t, err)

		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 3, exitErr.ExitCode)
		assert.Equal(t, "sh -c 'exit 3'", exitErr.Command)
	})

	t.Run("missing executable", func(t *testing.T) {
		err := runner.Run(context.Background(), "rawdog-definitely-not-a-command")
		assert.Error(t, err)
	})

	t.Run("arguments are passed through unchanged", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "with space $x")

		require.NoError(t, runner.Run(context.Background(), "mkdir", target))
		info, err := os.Stat(target)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestRunCommandWithExitCode_CapturesOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code, err := RunCommandWithExitCode(context.Background(), "echo out; echo err >&2; sh -c 'exit 5'", nil, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 5, code)
	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
}

func TestProcessGroupExecHandler_ChildHasOwnGroup(t *testing.T) {
	if _, err := exec.LookPath("ps"); err != nil {
		t.Skip("ps not available")
	}

	var stdout bytes.Buffer
	code, err := RunCommandWithExitCode(context.Background(), "sh -c 'ps -o pgid= -p $$'", nil, &stdout, nil)
	require.NoError(t, err)
	require.Equal(t, 0, code)

	childPgid, err := strconv.Atoi(strings.TrimSpace(stdout.String()))
	require.NoError(t, err)
	assert.NotEqual(t, syscall.Getpgrp(), childPgid)
}

func TestRunner_Run_CancelStopsChild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	err := NewRunner(nil).Run(ctx, "sleep", "30")

	assert.Error(t, err)
	assert.Less(t, time.Since(start), killTimeout+5*time.Second)
}
