package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quillpad/quillpad-agent/examples"
)

// runInit initializes a quillagent working directory: the data
// directory for the identity database and an example config to edit.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing quillagent workspace in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// The config carries credentials, so keep it private.
	configPath := filepath.Join(dir, "quillagent.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit quillagent.yaml, then start the agent with: quillagent run")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte, mode os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, mode)
}
