package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/dsstar/internal/errors"
)

// Interpreter is a resolved Python interpreter
type Interpreter struct {
	Alias   string
	Path    string
	Version string
	Major   int
	Minor   int
}

// interpreterCandidates are tried in order when no interpreter is configured.
var interpreterCandidates = []string{"python3", "python"}

// FindInterpreter resolves a Python 3 interpreter. A non-empty name is looked
// up directly; otherwise python3 and then python are tried on PATH.
func FindInterpreter(ctx context.Context, name string) (Interpreter, error) {
	candidates := interpreterCandidates
	if name != "" {
		candidates = []string{name}
	}

	var mismatches []string
	for _, alias := range candidates {
		path, err := exec.LookPath(alias)
		if err != nil {
			continue
		}

		interp, err := inspectInterpreter(ctx, alias, path)
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("%s: could not read version", alias))
			continue
		}
		if interp.Major != 3 {
			mismatches = append(mismatches, fmt.Sprintf("%s -> %s (major=%d)", alias, interp.Version, interp.Major))
			continue
		}
		return interp, nil
	}

	if len(mismatches) > 0 {
		return Interpreter{}, fmt.Errorf("%w: python 3 is required; found %s",
			errors.ErrInterpreterNotFound, strings.Join(mismatches, "; "))
	}
	return Interpreter{}, fmt.Errorf("%w: tried %s", errors.ErrInterpreterNotFound, strings.Join(candidates, ", "))
}

func inspectInterpreter(ctx context.Context, alias, path string) (Interpreter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-c",
		"import sys; print(sys.version_info.major); print(sys.version_info.minor); print(sys.version.split()[0])",
	).Output()
	if err != nil {
		return Interpreter{}, err
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 3 {
		return Interpreter{}, fmt.Errorf("unexpected version response")
	}

	major, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Interpreter{}, fmt.Errorf("invalid major version: %w", err)
	}
	minor, err := strconv.Atoi(strings.TrimSpace(lines[1]))
	if err != nil {
		return Interpreter{}, fmt.Errorf("invalid minor version: %w", err)
	}

	return Interpreter{
		Alias:   alias,
		Path:    path,
		Version: strings.TrimSpace(lines[2]),
		Major:   major,
		Minor:   minor,
	}, nil
}
