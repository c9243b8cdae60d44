// Package security provides the hard safety backstops for capability
// execution: the path boundary, audit logging, log redaction, rate
// limiting, URL filtering, subprocess environment sanitization, and
// sandboxed command execution. Approval policy decides what is allowed;
// this package makes sure even an approved call cannot break invariants.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBoundary is returned when a handler refuses to touch a path
// outside the boundary root.
var ErrOutsideBoundary = errors.New("path escapes the boundary root")

// Boundary is the declared root directory that separates local-scoped
// calls from external ones. The approval gate uses it to compute scope;
// local handlers use it as a defense-in-depth backstop.
type Boundary struct {
	root string
}

// NewBoundary creates a boundary rooted at dir. The directory is resolved
// to an absolute path; it does not need to exist yet.
func NewBoundary(dir string) (*Boundary, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("boundary: root must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("boundary: resolve %s: %w", dir, err)
	}
	return &Boundary{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute boundary root.
func (b *Boundary) Root() string {
	return b.root
}

// Resolve turns p (absolute, or relative to the root) into an absolute
// path and reports whether it lies inside the boundary.
func (b *Boundary) Resolve(p string) (abs string, inside bool) {
	if p == "" {
		return b.root, true
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.root, p)
	}
	abs = filepath.Clean(p)

	rel, err := filepath.Rel(b.root, abs)
	if err != nil {
		return abs, false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs, false
	}
	return abs, true
}

// Require resolves p and fails with ErrOutsideBoundary when it escapes the
// root. Handlers call this immediately before any filesystem side effect.
func (b *Boundary) Require(p string) (string, error) {
	abs, inside := b.Resolve(p)
	if !inside {
		return "", fmt.Errorf("%w: %s", ErrOutsideBoundary, p)
	}
	return abs, nil
}

// WorkingBoundary creates a boundary rooted at the current working
// directory.
func WorkingBoundary() (*Boundary, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("boundary: getwd: %w", err)
	}
	return NewBoundary(wd)
}
