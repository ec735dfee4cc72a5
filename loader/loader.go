// Package loader reads strategy scripts from disk and refuses any that fail
// path containment, the extension allow-list or security validation.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/pathsafe"
	"github.com/rustyeddy/tradeguard/security"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported strategy file type")
	ErrUnsafeScript         = errors.New("strategy failed security validation")
)

var allowedExtensions = map[string]bool{
	".py": true,
	".kh": true,
}

// UnsafeScriptError carries the outcome of a script that was refused.
type UnsafeScriptError struct {
	Path    string
	Outcome security.Outcome
}

func (e *UnsafeScriptError) Error() string {
	var b strings.Builder
	b.WriteString(ErrUnsafeScript.Error())
	b.WriteString(": ")
	b.WriteString(filepath.Base(e.Path))
	for _, msg := range e.Outcome.Messages() {
		b.WriteString("\n  - ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *UnsafeScriptError) Unwrap() error { return ErrUnsafeScript }

// Script is a validated strategy ready to hand to an interpreter.
type Script struct {
	Path    string
	Name    string
	Source  string
	Outcome security.Outcome
}

// AuditSink records every validation, safe or not.
type AuditSink interface {
	RecordValidation(ctx context.Context, path string, out security.Outcome, at time.Time) error
}

type Loader struct {
	resolver  *pathsafe.Resolver
	validator *security.Validator
	log       *zap.Logger
	metrics   *metrics.Collectors
	audit     AuditSink
	workers   int
}

type Option func(*Loader)

func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

func WithMetrics(m *metrics.Collectors) Option { return func(ld *Loader) { ld.metrics = m } }

func WithAuditSink(a AuditSink) Option { return func(ld *Loader) { ld.audit = a } }

// WithWorkers bounds LoadAll concurrency.
func WithWorkers(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.workers = n
		}
	}
}

func New(resolver *pathsafe.Resolver, validator *security.Validator, opts ...Option) *Loader {
	l := &Loader{
		resolver:  resolver,
		validator: validator,
		log:       zap.NewNop(),
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves path, checks its extension, reads and validates it. An
// unsafe script returns a nil Script and an *UnsafeScriptError carrying
// the Outcome; its source never leaves the loader.
func (l *Loader) Load(ctx context.Context, path string) (*Script, error) {
	resolved, err := l.resolver.Resolve(path)
	if err != nil {
		l.log.Warn("strategy path refused", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read strategy %s: %w", filepath.Base(resolved), err)
	}

	out := l.validator.ValidateBytes(data)
	l.metrics.ObserveValidation(out.Safe)
	if l.audit != nil {
		if err := l.audit.RecordValidation(ctx, resolved, out, time.Now()); err != nil {
			l.log.Error("record validation", zap.String("path", resolved), zap.Error(err))
		}
	}

	if !out.Safe {
		l.log.Warn("strategy refused",
			zap.String("path", resolved),
			zap.Strings("errors", out.Errors),
		)
		return nil, &UnsafeScriptError{Path: resolved, Outcome: out}
	}
	s := &Script{
		Path:    resolved,
		Name:    filepath.Base(resolved),
		Source:  string(data),
		Outcome: out,
	}
	if len(out.Warnings) > 0 {
		l.log.Info("strategy loaded with warnings",
			zap.String("path", resolved),
			zap.Strings("warnings", out.Warnings),
		)
	}
	return s, nil
}

// Result is one entry of a LoadAll batch.
type Result struct {
	Path   string
	Script *Script
	Err    error
}

// LoadAll loads every path concurrently. Per-script failures land in the
// matching Result; the returned error is only set when ctx ends first.
func (l *Loader) LoadAll(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := l.Load(gctx, p)
			results[i] = Result{Path: p, Script: s, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Check reports whether path is loadable, with a message suitable for an
// operator.
func (l *Loader) Check(ctx context.Context, path string) (bool, string) {
	s, err := l.Load(ctx, path)

	var secErr *pathsafe.SecurityError
	var unsafe *UnsafeScriptError
	switch {
	case err == nil:
		return true, "strategy passed validation: " + s.Name
	case errors.As(err, &unsafe):
		return false, unsafe.Error()
	case errors.As(err, &secErr):
		return false, "path security check failed: " + secErr.Reason
	case errors.Is(err, ErrUnsupportedExtension):
		return false, "unsupported file type: " + filepath.Ext(path)
	default:
		return false, "validation error: " + err.Error()
	}
}

// ValidateStrategyFile checks one file against base with a throwaway
// resolver and validator. An empty base means the executable's directory.
func ValidateStrategyFile(path, base string) (bool, string) {
	r, err := pathsafe.NewResolver(base)
	if err != nil {
		return false, "validation error: " + err.Error()
	}
	return New(r, security.NewValidator()).Check(context.Background(), path)
}
