// Package envinfo captures a point-in-time description of the user's
// environment (date, working directory, operating system, git status) and
// renders it as text for inclusion in an LLM prompt.
package envinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Fragments stored in Snapshot.IsGit. They are spliced into the rendered
// sentence verbatim, so stored examples must keep the fragment, not a bool.
const (
	GitRepo    = "IS"
	NotGitRepo = "is NOT"
)

// Record keys used by Record and FromRecord.
const (
	KeyDate  = "date"
	KeyCwd   = "cwd"
	KeyOS    = "os"
	KeyIsGit = "is_git"
)

// ErrMissingKey is returned by FromRecord when a record lacks one of the keys.
var ErrMissingKey = errors.New("missing key in environment record")

// Snapshot is an immutable description of the environment a request was made in.
type Snapshot struct {
	Date  string `yaml:"date" json:"date"`
	Cwd   string `yaml:"cwd" json:"cwd"`
	OS    string `yaml:"os" json:"os"`
	IsGit string `yaml:"is_git" json:"is_git"`
}

// Capture reads the live process environment.
func Capture() (Snapshot, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get working directory: %w", err)
	}
	return capture(cwd, time.Now(), runtime.GOOS)
}

func capture(cwd string, now time.Time, goos string) (Snapshot, error) {
	absCwd, err := filepath.Abs(cwd)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	isGit := NotGitRepo
	if _, err := os.Stat(filepath.Join(absCwd, ".git")); err == nil {
		isGit = GitRepo
	} else if !errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("failed to check for .git: %w", err)
	}

	return Snapshot{
		Date:  now.Format(time.DateOnly),
		Cwd:   absCwd,
		OS:    PlatformName(goos),
		IsGit: isGit,
	}, nil
}

// FromRecord builds a snapshot from a stored record without looking at the
// live environment.
func FromRecord(record map[string]string) (Snapshot, error) {
	var s Snapshot
	fields := []struct {
		key string
		dst *string
	}{
		{KeyDate, &s.Date},
		{KeyCwd, &s.Cwd},
		{KeyOS, &s.OS},
		{KeyIsGit, &s.IsGit},
	}
	for _, f := range fields {
		value, ok := record[f.key]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: %q", ErrMissingKey, f.key)
		}
		*f.dst = value
	}
	return s, nil
}

// Record returns the four-key form accepted by FromRecord.
func (s Snapshot) Record() map[string]string {
	return map[string]string{
		KeyDate:  s.Date,
		KeyCwd:   s.Cwd,
		KeyOS:    s.OS,
		KeyIsGit: s.IsGit,
	}
}

// Render returns the three-line prompt description of the snapshot.
func (s Snapshot) Render() string {
	lines := []string{
		fmt.Sprintf("Today's date is %s.", s.Date),
		fmt.Sprintf("The current working directory is %s, which %s a git repository.", s.Cwd, s.IsGit),
		fmt.Sprintf("The user's operating system is %s", s.OS),
	}
	return strings.Join(lines, "\n")
}

var platformNames = map[string]string{
	"linux":     "Linux",
	"darwin":    "Darwin",
	"windows":   "Windows",
	"freebsd":   "FreeBSD",
	"openbsd":   "OpenBSD",
	"netbsd":    "NetBSD",
	"dragonfly": "DragonFly",
	"solaris":   "SunOS",
	"illumos":   "SunOS",
	"aix":       "AIX",
}

// PlatformName maps a GOOS value to the short system name users expect to see
// ("Linux", "Darwin", "Windows").
func PlatformName(goos string) string {
	if name, ok := platformNames[goos]; ok {
		return name
	}
	if goos == "" {
		return ""
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}
