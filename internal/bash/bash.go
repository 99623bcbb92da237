package bash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// killTimeout is how long a child gets to exit after SIGINT when its context is cancelled.
const killTimeout = 2 * time.Second

// ExitError reports a command that ran but exited with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
}

// Runner runs external commands with their output discarded.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a Runner. The logger is optional (can be nil).
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Run executes name with args, discarding stdout and stderr.
// A non-zero exit status is returned as *ExitError.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	command, err := QuoteCommand(append([]string{name}, args...))
	if err != nil {
		return err
	}

	r.logger.Debug("running command", zap.String("command", command))
	start := time.Now()

	exitCode, err := RunCommandWithExitCode(ctx, command, nil, io.Discard, io.Discard)
	if err != nil {
		r.logger.Debug("command failed to run", zap.String("command", command), zap.Error(err))
		return fmt.Errorf("failed to run %q: %w", command, err)
	}

	r.logger.Debug("command finished",
		zap.String("command", command),
		zap.Int("exitCode", exitCode),
		zap.Duration("duration", time.Since(start)),
	)
	if exitCode != 0 {
		return &ExitError{Command: command, ExitCode: exitCode}
	}
	return nil
}

// QuoteCommand joins argv into a single bash command line, quoting every
// argument so that paths with spaces or shell metacharacters survive parsing.
func QuoteCommand(argv []string) (string, error) {
	if len(argv) == 0 || argv[0] == "" {
		return "", errors.New("empty command")
	}

	quoted := make([]string, 0, len(argv))
	for _, arg := range argv {
		q, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("failed to quote argument %q: %w", arg, err)
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), nil
}

// RunCommandWithExitCode parses and runs a bash command in a fresh runner
// with the given stdio. Returns the exit code and any execution error.
// A non-zero exit code is NOT treated as an error - check the exit code separately.
func RunCommandWithExitCode(ctx context.Context, command string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return 1, fmt.Errorf("failed to parse bash command: %w", err)
	}

	runner, err := interp.New(
		interp.Env(expand.ListEnviron(os.Environ()...)),
		interp.StdIO(stdin, stdout, stderr),
		interp.ExecHandlers(func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
			return NewProcessGroupExecHandler(killTimeout)
		}),
	)
	if err != nil {
		return 1, fmt.Errorf("failed to create bash runner: %w", err)
	}

	err = runner.Run(ctx, prog)
	if err != nil {
		if exitStatus, ok := interp.IsExitStatus(err); ok {
			// Non-zero exit code is not an execution error
			return int(exitStatus), nil
		}
		// Real execution error
		return 1, err
	}

	return 0, nil
}
