// Package analyzer describes data files before the iteration loop starts.
//
// AnalyzeAll fans requests out to a Describer under a concurrency cap and
// waits for every request to settle. A failing file is logged and left out
// of the result; it never aborts analysis of the others.
package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/Iron-Ham/dsstar/internal/session"
)

// Request is everything a Describer is given about one file
type Request struct {
	Path      string
	Extension string
	SizeBytes int64
	Preview   string

	// PreviewLines and PreviewBytes are the limits Preview was taken with
	PreviewLines int
	PreviewBytes int
}

// Describer turns a file preview into a description.
type Describer interface {
	Describe(ctx context.Context, req Request) (session.FileDescription, error)
}

// Config controls the analysis fan-out and preview size
type Config struct {
	Concurrency  int
	PreviewLines int
	PreviewBytes int
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{Concurrency: 5, PreviewLines: 50, PreviewBytes: 5000}
}

// ConfigFrom projects the analyzer settings of cfg.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Concurrency:  cfg.Session.AnalysisConcurrency,
		PreviewLines: cfg.Analyzer.PreviewLines,
		PreviewBytes: cfg.Analyzer.PreviewBytes,
	}
}

// Analyzer drives file analysis
type Analyzer struct {
	describer Describer
	cfg       Config
	logger    *logging.Logger
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger sets the analyzer logger.
func WithLogger(logger *logging.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Analyzer backed by d.
func New(d Describer, cfg Config, opts ...Option) *Analyzer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	a := &Analyzer{describer: d, cfg: cfg, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze describes a single file. Path and SizeBytes of the result come
// from the filesystem, not from the describer.
func (a *Analyzer) Analyze(ctx context.Context, path string) (session.FileDescription, error) {
	req := Request{
		Path:      path,
		Extension: strings.ToLower(filepath.Ext(path)),
		Preview:   Preview(path, a.cfg.PreviewLines, a.cfg.PreviewBytes),

		PreviewLines: a.cfg.PreviewLines,
		PreviewBytes: a.cfg.PreviewBytes,
	}
	info, statErr := os.Stat(path)
	if statErr == nil {
		req.SizeBytes = info.Size()
	}

	fd, err := a.describer.Describe(ctx, req)
	if err != nil {
		return session.FileDescription{}, err
	}

	fd.Path = path
	fd.SizeBytes = nil
	if statErr == nil {
		size := req.SizeBytes
		fd.SizeBytes = &size
	}
	return fd, nil
}

// AnalyzeAll describes every path with at most Concurrency requests in
// flight. It returns once all requests have settled. Result order is not
// tied to input order.
func (a *Analyzer) AnalyzeAll(ctx context.Context, paths []string) []session.FileDescription {
	if len(paths) == 0 {
		return nil
	}

	p := pool.NewWithResults[*session.FileDescription]().WithMaxGoroutines(a.cfg.Concurrency)
	for _, path := range paths {
		p.Go(func() *session.FileDescription {
			fd, err := a.Analyze(ctx, path)
			if err != nil {
				a.logger.Warn("file analysis failed", "path", path, "error", err)
				return nil
			}
			a.logger.Debug("file analyzed", "path", path, "file_type", fd.FileType)
			return &fd
		})
	}

	results := p.Wait()
	descriptions := make([]session.FileDescription, 0, len(results))
	for _, fd := range results {
		if fd != nil {
			descriptions = append(descriptions, *fd)
		}
	}
	return descriptions
}
