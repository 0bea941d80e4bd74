package memo

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// TestExamplesBuild compiles every examples/<name>/main.go. The examples carry
// an ignore build tag so the package tree stays free of main packages.
func TestExamplesBuild(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping example builds in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not on PATH")
	}
	t.Parallel()

	entries, err := os.ReadDir("examples")
	if err != nil {
		t.Fatalf("cannot read examples directory: %v", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if out, err := buildExample(filepath.Join("examples", name, "main.go")); err != nil {
				t.Fatalf("example %q failed to build:\n%s", name, out)
			}
		})
	}
}

func buildExample(path string) (string, error) {
	cmd := exec.Command("go", "build", "-o", os.DevNull, path)
	cmd.Env = append(os.Environ(), "GOWORK=off")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}
