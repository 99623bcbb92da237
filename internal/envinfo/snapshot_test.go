package envinfo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCapture_NotGitRepo(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)

	s, err := capture(dir, now, "linux")
	require.NoError(t, err)

	assert.Equal(t, "2024-03-09", s.Date)
	assert.Equal(t, dir, s.Cwd)
	assert.Equal(t, "Linux", s.OS)
	assert.Equal(t, NotGitRepo, s.IsGit)
}

func TestCapture_GitRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))

	s, err := capture(dir, time.Now(), "darwin")
	require.NoError(t, err)

	assert.Equal(t, GitRepo, s.IsGit)
	assert.Equal(t, "Darwin", s.OS)
}

func TestCapture_GitFileCounts(t *testing.T) {
	// Worktrees and submodules use a .git file rather than a directory
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("gitdir: ../x"), 0644))

	s, err := capture(dir, time.Now(), "linux")
	require.NoError(t, err)
	assert.Equal(t, GitRepo, s.IsGit)
}

func TestCapture_Live(t *testing.T) {
	s, err := Capture()
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, s.Cwd)
	assert.True(t, filepath.IsAbs(s.Cwd))
	_, err = time.Parse(time.DateOnly, s.Date)
	assert.NoError(t, err)
	assert.NotEmpty(t, s.OS)
}

func TestFromRecord(t *testing.T) {
	record := map[string]string{
		"date":   "2023-12-31",
		"cwd":    "/home/user/project",
		"os":     "Linux",
		"is_git": "IS",
	}

	s, err := FromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Date: "2023-12-31", Cwd: "/home/user/project", OS: "Linux", IsGit: "IS"}, s)
}

func TestFromRecord_MissingKey(t *testing.T) {
	for _, key := range []string{"date", "cwd", "os", "is_git"} {
		t.Run(key, func(t *testing.T) {
			record := map[string]string{
				"date":   "2023-12-31",
				"cwd":    "/tmp",
				"os":     "Linux",
				"is_git": "is NOT",
			}
			delete(record, key)

			_, err := FromRecord(record)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingKey))
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestFromRecord_RoundTrip(t *testing.T) {
	captured, err := Capture()
	require.NoError(t, err)

	replayed, err := FromRecord(captured.Record())
	require.NoError(t, err)

	assert.Equal(t, captured.Render(), replayed.Render())
}

func TestRender(t *testing.T) {
	s := Snapshot{Date: "2024-01-02", Cwd: "/work", OS: "Linux", IsGit: NotGitRepo}

	expected := "Today's date is 2024-01-02.\n" +
		"The current working directory is /work, which is NOT a git repository.\n" +
		"The user's operating system is Linux"
	assert.Equal(t, expected, s.Render())
}

func TestRender_ThreeLinesAndOneGitFragment(t *testing.T) {
	for _, isGit := range []string{GitRepo, NotGitRepo} {
		s := Snapshot{Date: "2024-01-02", Cwd: "/work", OS: "Windows", IsGit: isGit}
		out := s.Render()

		assert.Len(t, strings.Split(out, "\n"), 3)

		hasIS := strings.Contains(out, "which IS a git")
		hasNot := strings.Contains(out, "which is NOT a git")
		assert.True(t, hasIS != hasNot, "exactly one git fragment expected in %q", out)
	}
}

func TestSnapshot_YAMLRecordKeys(t *testing.T) {
	data := []byte("date: 2024-05-06\ncwd: /srv\nos: Darwin\nis_git: IS\n")

	var s Snapshot
	require.NoError(t, yaml.Unmarshal(data, &s))
	assert.Equal(t, Snapshot{Date: "2024-05-06", Cwd: "/srv", OS: "Darwin", IsGit: "IS"}, s)
}

func TestPlatformName(t *testing.T) {
	assert.Equal(t, "Linux", PlatformName("linux"))
	assert.Equal(t, "Darwin", PlatformName("darwin"))
	assert.Equal(t, "Windows", PlatformName("windows"))
	assert.Equal(t, "FreeBSD", PlatformName("freebsd"))
	assert.Equal(t, "Plan9", PlatformName("plan9"))
	assert.Equal(t, "", PlatformName(""))
}
