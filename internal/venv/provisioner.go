// Package venv provisions the isolated Python environment that generated
// scripts run in. The environment is created lazily on first use, seeded
// with a baseline package set, and trusted as-is on every later call.
package venv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// BaselinePackages are installed right after the environment is created.
var BaselinePackages = []string{"matplotlib", "pandas", "numpy"}

// ErrNoPackages is returned by InstallPackages when given no package names.
var ErrNoPackages = errors.New("no packages to install")

// HostPythonEnvVar overrides the interpreter used to create the environment.
const HostPythonEnvVar = "RAWDOG_PYTHON"

// CommandRunner runs an external command with its output discarded.
// A non-zero exit status must be reported as an error.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Options configures a Provisioner.
type Options struct {
	// Dir is the environment root, e.g. ~/.rawdog/venv.
	Dir string

	// Runner executes the venv and pip commands.
	Runner CommandRunner

	// Out receives the progress lines. Defaults to os.Stdout.
	Out io.Writer

	// HostPython creates the environment. Defaults to $RAWDOG_PYTHON, then
	// python3 (python on Windows).
	HostPython string

	// GOOS selects the interpreter layout. Defaults to runtime.GOOS.
	GOOS string

	Logger *zap.Logger
}

// Provisioner creates and populates the execution environment.
type Provisioner struct {
	dir        string
	runner     CommandRunner
	out        io.Writer
	hostPython string
	goos       string
	logger     *zap.Logger
}

// NewProvisioner creates a Provisioner. Dir and Runner are required.
func NewProvisioner(opts Options) (*Provisioner, error) {
	if opts.Dir == "" {
		return nil, errors.New("venv directory is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("command runner is required")
	}

	p := &Provisioner{
		dir:        opts.Dir,
		runner:     opts.Runner,
		out:        opts.Out,
		hostPython: opts.HostPython,
		goos:       opts.GOOS,
		logger:     opts.Logger,
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.goos == "" {
		p.goos = runtime.GOOS
	}
	if p.hostPython == "" {
		p.hostPython = defaultHostPython(p.goos)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p, nil
}

func defaultHostPython(goos string) string {
	if python := os.Getenv(HostPythonEnvVar); python != "" {
		return python
	}
	if goos == "windows" {
		return "python"
	}
	return "python3"
}

// Dir returns the environment root.
func (p *Provisioner) Dir() string {
	return p.dir
}

// InterpreterPath returns where the environment's python lives, without
// creating anything.
func (p *Provisioner) InterpreterPath() string {
	if p.goos == "windows" {
		return filepath.Join(p.dir, "Scripts", "python")
	}
	return filepath.Join(p.dir, "bin", "python")
}

// PythonPath returns the environment's interpreter, creating the environment
// and installing BaselinePackages first if its directory does not exist.
func (p *Provisioner) PythonPath(ctx context.Context) (string, error) {
	python := p.InterpreterPath()

	exists, err := p.exists()
	if err != nil {
		return "", err
	}
	if exists {
		return python, nil
	}

	fmt.Fprintf(p.out, "Creating virtual environment in %s...\n", p.dir)
	p.logger.Info("creating virtual environment",
		zap.String("dir", p.dir),
		zap.String("hostPython", p.hostPython),
	)
	if err := p.runner.Run(ctx, p.hostPython, "-m", "venv", p.dir); err != nil {
		return "", fmt.Errorf("failed to create virtual environment in %s: %w", p.dir, err)
	}

	if err := p.pipInstall(ctx, python, BaselinePackages); err != nil {
		return "", err
	}

	return python, nil
}

// InstallPackages installs packages into the environment with pip, creating
// the environment first if needed.
// Duplicate and empty names are dropped; if nothing is left ErrNoPackages is
// returned before anything runs.
func (p *Provisioner) InstallPackages(ctx context.Context, packages ...string) error {
	packages = lo.Uniq(lo.Compact(packages))
	if len(packages) == 0 {
		return ErrNoPackages
	}

	python, err := p.PythonPath(ctx)
	if err != nil {
		return err
	}
	return p.pipInstall(ctx, python, packages)
}

func (p *Provisioner) pipInstall(ctx context.Context, python string, packages []string) error {
	fmt.Fprintf(p.out, "Installing %s with pip...\n", strings.Join(packages, ", "))
	p.logger.Info("installing packages", zap.Strings("packages", packages))

	args := append([]string{"-m", "pip", "install"}, packages...)
	if err := p.runner.Run(ctx, python, args...); err != nil {
		return fmt.Errorf("failed to install %s: %w", strings.Join(packages, ", "), err)
	}
	return nil
}

func (p *Provisioner) exists() (bool, error) {
	_, err := os.Stat(p.dir)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check virtual environment: %w", err)
}
