package core

import (
	"fmt"
	"os"
	"path/filepath"
)

const dataDirName = ".rawdog"

// Paths holds every location rawdog reads or writes under its state directory.
type Paths struct {
	HomeDir            string
	DataDir            string
	CmdlineHistoryFile string
	ConfigFile         string
	VenvDir            string
	LogFile            string
	ExamplesFile       string
}

// NewPaths builds the path set rooted at dataDir. Nothing is created on disk.
func NewPaths(homeDir string, dataDir string) *Paths {
	return &Paths{
		HomeDir:            homeDir,
		DataDir:            dataDir,
		CmdlineHistoryFile: filepath.Join(dataDir, "cmdline_history"),
		ConfigFile:         filepath.Join(dataDir, "config.yaml"),
		VenvDir:            filepath.Join(dataDir, "venv"),
		LogFile:            filepath.Join(dataDir, "rawdog.log"),
		ExamplesFile:       filepath.Join(dataDir, "history.db"),
	}
}

// EnsureDataDir creates the state directory if it does not exist yet.
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir, 0755)
}

var defaultPaths *Paths

func ensureDefaultPaths() error {
	if defaultPaths != nil {
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to locate home directory: %w", err)
	}

	paths := NewPaths(homeDir, filepath.Join(homeDir, dataDirName))
	if err := paths.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create %s: %w", paths.DataDir, err)
	}

	defaultPaths = paths
	return nil
}

// DefaultPaths returns the paths under ~/.rawdog, creating the directory on first use.
func DefaultPaths() (*Paths, error) {
	if err := ensureDefaultPaths(); err != nil {
		return nil, err
	}
	return defaultPaths, nil
}

// ResetPaths clears the cached paths, forcing them to be reinitialized.
// This is primarily used for testing purposes.
func ResetPaths() {
	defaultPaths = nil
}
