package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSource(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hello.py")
		require.NoError(t, os.WriteFile(path, []byte("print(1)"), 0o644))

		code, err := readSource([]string{path}, strings.NewReader("ignored"))
		require.NoError(t, err)
		assert.Equal(t, "print(1)", code)
	})

	t.Run("stdin", func(t *testing.T) {
		code, err := readSource(nil, strings.NewReader("echo hi"))
		require.NoError(t, err)
		assert.Equal(t, "echo hi", code)
	})

	t.Run("dash means stdin", func(t *testing.T) {
		code, err := readSource([]string{"-"}, strings.NewReader("echo hi"))
		require.NoError(t, err)
		assert.Equal(t, "echo hi", code)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readSource([]string{filepath.Join(t.TempDir(), "nope.py")}, nil)
		assert.Error(t, err)
	})
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "run", "languages", "mcp"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestLanguagesCommand(t *testing.T) {
	var out strings.Builder
	languagesCmd.SetOut(&out)
	require.NoError(t, languagesCmd.RunE(languagesCmd, nil))

	assert.Contains(t, out.String(), "python")
	assert.Contains(t, out.String(), "Main.java")
}
