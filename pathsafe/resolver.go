// Package pathsafe canonicalizes filesystem paths and keeps them inside a
// set of allowed roots.
package pathsafe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrOutsideRoots is wrapped by every *SecurityError.
var ErrOutsideRoots = errors.New("path outside allowed roots")

// SecurityError reports input that failed a containment or transport policy.
// Callers must abort the operation that produced it.
type SecurityError struct {
	Path     string // input as given
	Resolved string // canonical form, when known
	Reason   string
}

func (e *SecurityError) Error() string {
	if e.Resolved != "" && e.Resolved != e.Path {
		return fmt.Sprintf("path not allowed: %s (resolved %s): %s", e.Path, e.Resolved, e.Reason)
	}
	return fmt.Sprintf("path not allowed: %s: %s", e.Path, e.Reason)
}

func (e *SecurityError) Unwrap() error { return ErrOutsideRoots }

// Resolver resolves paths against a base root and rejects anything whose
// canonical form escapes every allowed root. It is safe for concurrent use.
type Resolver struct {
	base string

	mu    sync.RWMutex
	roots []string
}

// NewResolver returns a Resolver rooted at base. An empty base means the
// directory holding the running executable.
func NewResolver(base string) (*Resolver, error) {
	if base == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		base = filepath.Dir(exe)
	}
	canon, err := canonical(base)
	if err != nil {
		return nil, fmt.Errorf("canonicalize base %s: %w", base, err)
	}
	return &Resolver{base: canon, roots: []string{canon}}, nil
}

// Base returns the canonical base root.
func (r *Resolver) Base() string { return r.base }

// Roots returns a copy of the allowed roots, base first.
func (r *Resolver) Roots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.roots...)
}

// AddRoot allows paths under root in addition to the existing roots.
// Relative roots are taken relative to the base.
func (r *Resolver) AddRoot(root string) error {
	if !filepath.IsAbs(root) {
		root = filepath.Join(r.base, root)
	}
	canon, err := canonical(root)
	if err != nil {
		return fmt.Errorf("canonicalize root %s: %w", root, err)
	}
	r.mu.Lock()
	r.roots = append(r.roots, canon)
	r.mu.Unlock()
	return nil
}

// Resolve returns the canonical form of path. Relative input is joined to
// the base first. Symlinks and ".." segments are fully resolved before the
// containment check, which passes if any allowed root is an ancestor of (or
// equal to) the result.
func (r *Resolver) Resolve(path string) (string, error) {
	in := path
	if in == "" {
		in = "."
	}
	if !filepath.IsAbs(in) {
		in = filepath.Join(r.base, in)
	}
	resolved, err := canonical(in)
	if err != nil {
		return "", &SecurityError{Path: path, Reason: err.Error()}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, root := range r.roots {
		if within(root, resolved) {
			return resolved, nil
		}
	}
	return "", &SecurityError{Path: path, Resolved: resolved, Reason: "outside allowed roots"}
}

// within reports whether target equals root or lies beneath it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// canonical makes p absolute, resolves every symlink in its longest
// existing prefix and cleans the rest. Paths that do not exist yet are
// still canonicalized so a write target can be checked before creation.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	existing := abs
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Clean(filepath.Join(parts...)), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}
