// Package executor runs generated Python programs in a child process with a
// timeout and an output cap. Execute never returns an error: every failure is
// encoded in the returned session.ExecutionResult.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/errors"
	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/Iron-Ham/dsstar/internal/session"
)

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the child itself has been killed.
const waitDelay = 2 * time.Second

// Config holds executor settings
type Config struct {
	// Timeout is the wall-clock limit for one program
	Timeout time.Duration
	// MaxOutputLength caps stdout and stderr independently, in characters
	MaxOutputLength int
	// WorkingDir is the child's working directory; empty inherits ours
	WorkingDir string
	// Interpreter names the Python binary; empty resolves python3 then python
	Interpreter string
	// BlockedPatterns reject a program before it is spawned
	BlockedPatterns []string
	// SyntaxCheck parses the program with tree-sitter before spawning it
	SyntaxCheck bool
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         60 * time.Second,
		MaxOutputLength: 10000,
		BlockedPatterns: config.DefaultBlockedPatterns(),
		SyntaxCheck:     true,
	}
}

// ConfigFrom projects the executor section of cfg.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Timeout:         cfg.Executor.ExecutionTimeout(),
		MaxOutputLength: cfg.Executor.MaxOutputLength,
		WorkingDir:      cfg.Executor.WorkingDirectory,
		Interpreter:     cfg.Executor.Interpreter,
		BlockedPatterns: append([]string(nil), cfg.Executor.BlockedPatterns...),
		SyntaxCheck:     cfg.Executor.SyntaxCheck,
	}
}

// Spawner builds the command for one program. Implementations must build the
// command with exec.CommandContext so cancellation can kill it.
type Spawner func(ctx context.Context, name string, args ...string) *exec.Cmd

// Executor runs programs. It is safe for concurrent use; each call owns its
// own temporary file and child process.
type Executor struct {
	cfg    Config
	logger *logging.Logger
	spawn  Spawner

	mu     sync.Mutex
	interp *Interpreter
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger used for execution diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSpawner replaces how child processes are created.
func WithSpawner(s Spawner) Option {
	return func(e *Executor) {
		if s != nil {
			e.spawn = s
		}
	}
}

// New creates an Executor.
func New(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		cfg:    cfg,
		logger: logging.NopLogger(),
		spawn:  exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the executor configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Execute validates and runs block, returning its settled result.
func (e *Executor) Execute(ctx context.Context, block *session.CodeBlock) session.ExecutionResult {
	if block.IsEmpty() {
		return failed(errors.NewExecutionError(errors.KindValidation, "%v", errors.ErrNoCode))
	}

	if execErr := e.validate(ctx, block.Code); execErr != nil {
		e.logger.Debug("program rejected before spawn", "kind", string(execErr.Kind), "detail", execErr.Detail)
		return failed(execErr)
	}

	start := time.Now()
	result := e.run(ctx, block.Code)
	result.ExecutionTime = time.Since(start)

	e.logger.Debug("program finished",
		"success", result.Success,
		"duration_ms", result.ExecutionTimeMs(),
		"stdout_len", len(result.Stdout),
		"stderr_len", len(result.Stderr),
	)
	return result
}

func (e *Executor) validate(ctx context.Context, code string) *errors.ExecutionError {
	if p, found := findBlockedPattern(code, e.cfg.BlockedPatterns); found {
		return errors.NewExecutionError(errors.KindValidation, "Blocked pattern found: %s", p)
	}

	if !e.cfg.SyntaxCheck {
		return nil
	}
	syntaxErrs, err := CheckSyntax(ctx, code)
	if err != nil {
		// A parser failure says nothing about the program; let the interpreter decide.
		e.logger.Warn("syntax check unavailable", "error", err)
		return nil
	}
	if len(syntaxErrs) > 0 {
		return errors.NewExecutionError(errors.KindValidation, "%s", formatSyntaxErrors(syntaxErrs))
	}
	return nil
}

// interpreter resolves the interpreter once; failed lookups are retried on
// the next call.
func (e *Executor) interpreter(ctx context.Context) (Interpreter, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interp != nil {
		return *e.interp, nil
	}
	interp, err := FindInterpreter(ctx, e.cfg.Interpreter)
	if err != nil {
		return Interpreter{}, err
	}
	e.logger.Info("resolved interpreter", "path", interp.Path, "version", interp.Version)
	e.interp = &interp
	return interp, nil
}

func (e *Executor) run(ctx context.Context, code string) session.ExecutionResult {
	interp, err := e.interpreter(ctx)
	if err != nil {
		return failed(errors.NewExecutionError(errors.KindSpawn, "%v", err))
	}

	script, err := writeScript(code)
	if err != nil {
		return failed(errors.NewExecutionError(errors.KindSpawn, "%v", err))
	}
	defer func() {
		if rmErr := os.Remove(script); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.Warn("failed to remove program file", "path", script, "error", rmErr)
		}
	}()

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := e.spawn(runCtx, interp.Path, script)
	cmd.Dir = e.cfg.WorkingDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	runErr := cmd.Run()

	if runErr != nil {
		// Partial output of a killed program is discarded.
		if ctx.Err() != nil {
			return failed(errors.NewExecutionError(errors.KindCancelled, "Execution cancelled"))
		}
		if runCtx.Err() != nil {
			return failed(errors.NewExecutionError(errors.KindTimeout,
				"Execution timed out after %s seconds", formatSeconds(e.cfg.Timeout)))
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return failed(errors.NewExecutionError(errors.KindSpawn, "%v", runErr))
		}
	}

	result := session.ExecutionResult{
		Success: runErr == nil,
		Stdout:  truncate(decode(stdout.Bytes()), e.cfg.MaxOutputLength),
		Stderr:  truncate(decode(stderr.Bytes()), e.cfg.MaxOutputLength),
	}
	if !result.Success {
		result.ErrorTraceback = result.Stderr
	}
	return result
}

func writeScript(code string) (string, error) {
	f, err := os.CreateTemp("", "dsstar-*.py")
	if err != nil {
		return "", fmt.Errorf("failed to create program file: %w", err)
	}
	if _, err := f.WriteString(code); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write program file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close program file: %w", err)
	}
	return f.Name(), nil
}

func failed(err *errors.ExecutionError) session.ExecutionResult {
	return session.ExecutionResult{
		Success:        false,
		ErrorTraceback: err.Error(),
	}
}

// decode converts child output to valid UTF-8, replacing invalid sequences.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// truncate keeps the first limit characters of s and appends the original
// length when anything was cut.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := utf8.RuneCountInString(s)
	if n <= limit {
		return s
	}
	cut := 0
	for i := range s {
		if limit == 0 {
			cut = i
			break
		}
		limit--
	}
	return s[:cut] + fmt.Sprintf("\n... [truncated, total %d chars]", n)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
