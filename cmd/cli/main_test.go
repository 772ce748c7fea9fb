package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_InvalidDocument(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A document that is not valid JSON must surface as a load error.
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "broken.json")
	err := os.WriteFile(filePath, []byte(`{"nodes": [`), 0600)
	require.NoError(t, err, "failed to set up test file")

	args := []string{filePath}
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(out, args)

	// --- Assert ---
	require.Error(t, runErr, "run() should fail on a malformed document")
	require.Contains(t, runErr.Error(), "load document")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	// The run function should see `shouldExit=true` and return a nil error.
	err := run(out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Providing an unknown flag will cause cli.Parse to return an error.
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	// The run function should propagate the error from cli.Parse.
	err := run(out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_DemoGraph(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// No document path: the built-in demo graph is evaluated and outputs
	// are written to the requested directory.
	tempDir := t.TempDir()
	args := []string{"-output", tempDir, "-log-level", "debug"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(out, args)

	// --- Assert ---
	require.NoError(t, err)
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "expected PNG and DOT files in the output directory")

	var sawDot bool
	for _, e := range entries {
		if e.Name() == "graph.dot" {
			sawDot = true
		}
	}
	require.True(t, sawDot, "expected graph.dot in the output directory")
}
