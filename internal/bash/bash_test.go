package bash

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteCommand(t *testing.T) {
	t.Run("plain arguments stay readable", func(t *testing.T) {
		cmd, err := QuoteCommand([]string{"python3", "-m", "venv", "/home/user/.rawdog/venv"})
		require.NoError(t, err)
		assert.Equal(t, "python3 -m venv /home/user/.rawdog/venv", cmd)
	})

	t.Run("arguments with spaces and metacharacters are quoted", func(t *testing.T) {
		cmd, err := QuoteCommand([]string{"python", "-m", "venv", "/Users/Jane Doe/.rawdog/venv", "$HOME;rm"})
		require.NoError(t, err)
		assert.Equal(t, `python -m venv '/Users/Jane Doe/.rawdog/venv' '$HOME;rm'`, cmd)
	})

	t.Run("empty command", func(t *testing.T) {
		_, err := QuoteCommand(nil)
		assert.Error(t, err)

		_, err = QuoteCommand([]string{""})
		assert.Error(t, err)
	})
}

func TestRunCommandWithExitCode_ParseError(t *testing.T) {
	code, err := RunCommandWithExitCode(context.Background(), "echo 'unterminated", nil, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
