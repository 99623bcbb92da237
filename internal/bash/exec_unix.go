//go:build !windows

package bash

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
)

// NewProcessGroupExecHandler returns an ExecHandlerFunc that runs external
// commands in their own process group. A terminal Ctrl+C therefore only reaches
// rawdog; the caller cancels ctx and the whole child group (pip and anything it
// spawned) gets SIGINT, then SIGKILL once killTimeout has passed.
//
// A child that exits non-zero is reported as an interp exit status.
// A negative killTimeout kills the group immediately on cancellation.
func NewProcessGroupExecHandler(killTimeout time.Duration) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := interp.HandlerCtx(ctx)
		path, err := interp.LookPathDir(hc.Dir, hc.Env, args[0])
		if err != nil {
			return err
		}

		cmd := exec.Cmd{
			Path:   path,
			Args:   args,
			Dir:    hc.Dir,
			Env:    execEnv(hc.Env),
			Stdin:  hc.Stdin,
			Stdout: hc.Stdout,
			Stderr: hc.Stderr,
			// Put the child process in its own process group
			SysProcAttr: &syscall.SysProcAttr{
				Setpgid: true,
			},
		}

		if err := cmd.Start(); err != nil {
			return err
		}

		childPgid := cmd.Process.Pid

		// Wait for the command or context cancellation
		waitDone := make(chan error, 1)
		go func() {
			waitDone <- cmd.Wait()
		}()

		select {
		case err := <-waitDone:
			return exitStatusFromWait(err)
		case <-ctx.Done():
			if killTimeout < 0 {
				_ = syscall.Kill(-childPgid, syscall.SIGKILL)
				return exitStatusFromWait(<-waitDone)
			}

			_ = syscall.Kill(-childPgid, syscall.SIGINT)
			select {
			case err := <-waitDone:
				return exitStatusFromWait(err)
			case <-time.After(killTimeout):
				_ = syscall.Kill(-childPgid, syscall.SIGKILL)
			}
			return exitStatusFromWait(<-waitDone)
		}
	}
}

// exitStatusFromWait converts a child's exit error into the status the
// interpreter understands; other errors are returned unchanged.
func exitStatusFromWait(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 || code > 255 {
			// Killed by a signal
			code = 1
		}
		return interp.NewExitStatus(uint8(code))
	}
	return err
}

// execEnv converts expand.Environ to []string for exec.Cmd.Env
func execEnv(env expand.Environ) []string {
	var result []string
	env.Each(func(name string, vr expand.Variable) bool {
		if vr.Exported {
			result = append(result, name+"="+vr.String())
		}
		return true
	})
	// Also include current process environment for any vars not overridden
	result = append(result, os.Environ()...)
	return result
}
