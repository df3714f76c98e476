package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewCLI()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRoot_GeneratesFromStdin(t *testing.T) {
	out, err := execute(t, "it was the best of times")
	require.NoError(t, err)
	assert.Equal(t, "it\nwas\nthe\nbest\nof\ntimes\n", out)
}

func TestGenerate_EmptyInput(t *testing.T) {
	out, err := execute(t, "", "generate")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerate_MaxWordsFlag(t *testing.T) {
	out, err := execute(t, "a b c d e f g", "generate", "--max-words", "2", "--seed", "4")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)
}

func TestGenerate_InputFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.txt"), []byte("first part"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2.txt"), []byte("second part"), 0o644))

	out, err := execute(t, "ignored stdin", "--input", filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first\npart\nsecond\npart\n", out)
}

func TestGenerate_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.txt")
	require.NoError(t, os.WriteFile(corpus, []byte(strings.Repeat("y", 8)), 0o644))
	cfgPath := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"app:\n  inputs: ["+corpus+"]\ngenerator:\n  max_token_len: 3\n  overlong: split\n"), 0o644))

	out, err := execute(t, "", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "yyy\nyyy\nyy\n", out)
}

func TestGenerate_Errors(t *testing.T) {
	_, err := execute(t, "", "--input", filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorContains(t, err, "failed to open input")

	_, err = execute(t, "", "--overlong", "wrap")
	assert.ErrorContains(t, err, "overlong")

	_, err = execute(t, "", "--max-words", "-1")
	assert.ErrorContains(t, err, "max_words")

	_, err = execute(t, "", "unexpected")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestGenerate_PromptFlag(t *testing.T) {
	out, err := execute(t, "we shall fight on the beaches we shall fight on the landing grounds",
		"generate", "--prompt", "fight on the landing")
	require.NoError(t, err)
	assert.Equal(t, "grounds\n", out)

	_, err = execute(t, "we shall fight", "--prompt", "surrender")
	assert.ErrorContains(t, err, "context not in model")
}
