package security

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestBoundaryResolve(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	b, err := NewBoundary(root)
	if err != nil {
		t.Fatalf("new boundary: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		inside bool
	}{
		{"relative inside", "a.txt", true},
		{"nested inside", "dir/sub/file.go", true},
		{"dot", ".", true},
		{"absolute inside", filepath.Join(root, "x"), true},
		{"parent escape", "../outside.txt", false},
		{"deep escape", "a/../../etc/passwd", false},
		{"absolute outside", "/etc/passwd", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, inside := b.Resolve(tc.path)
			if inside != tc.inside {
				t.Fatalf("Resolve(%q) inside = %v, want %v", tc.path, inside, tc.inside)
			}
		})
	}
}

func TestBoundaryRequire_Outside(t *testing.T) {
	t.Parallel()

	b, err := NewBoundary(t.TempDir())
	if err != nil {
		t.Fatalf("new boundary: %v", err)
	}
	if _, err := b.Require("../escape"); !errors.Is(err, ErrOutsideBoundary) {
		t.Fatalf("expected ErrOutsideBoundary, got %v", err)
	}
}

func TestBoundary_EmptyRoot(t *testing.T) {
	t.Parallel()

	if _, err := NewBoundary("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestBoundary_SiblingPrefixNotInside(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	b, err := NewBoundary(root)
	if err != nil {
		t.Fatalf("new boundary: %v", err)
	}
	// A sibling directory sharing the root's name as a prefix must not
	// count as inside.
	if _, inside := b.Resolve(root + "-sibling/file"); inside {
		t.Fatal("sibling prefix treated as inside the boundary")
	}
}
