// Package testutil provides testing utilities for dsstar tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
)

// RequirePython returns the path of a Python interpreter, skipping the test
// when none is on PATH.
func RequirePython(t *testing.T) string {
	t.Helper()

	for _, name := range []string{"python3", "python"} {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		// "python" may still be Python 2 on older systems
		out, err := exec.Command(path, "-c", "import sys; print(sys.version_info.major)").Output()
		if err == nil && len(out) > 0 && out[0] == '3' {
			return path
		}
	}
	t.Skip("python 3 not found on PATH")
	return ""
}

// WriteFiles creates the given files under dir and returns their absolute
// paths sorted lexically. The files map contains relative paths to contents.
func WriteFiles(t *testing.T, dir string, files map[string]string) []string {
	t.Helper()

	paths := make([]string, 0, len(files))
	for rel, content := range files {
		fullPath := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", rel, err)
		}
		paths = append(paths, fullPath)
	}
	sort.Strings(paths)
	return paths
}

// SetupDataDir creates a temporary directory populated with files.
func SetupDataDir(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()

	dir := t.TempDir()
	return dir, WriteFiles(t, dir, files)
}
