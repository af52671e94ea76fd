// Package pathsafe implements canonical path containment checks.
//
// Containment is decided on cleaned absolute paths via filepath.Rel, never
// by string prefix, so a sibling like /etc2 is not mistaken for a child of a
// protected /etc.
package pathsafe

import (
	"os"
	"path/filepath"
	"strings"
)

// Canonical returns the cleaned absolute form of path with a leading ~
// expanded to the user's home directory.
func Canonical(path string) (string, error) {
	p := path
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Abs(filepath.Clean(p))
}

// Contains reports whether path is root itself or a descendant of root,
// comparing canonical forms.
func Contains(root, path string) bool {
	cr, err := Canonical(root)
	if err != nil {
		return false
	}
	cp, err := Canonical(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(cr, cp)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ContainsAny reports whether path is contained in any of the given roots.
func ContainsAny(roots []string, path string) bool {
	for _, r := range roots {
		if Contains(r, path) {
			return true
		}
	}
	return false
}

// HasTraversal reports whether the raw path carries a ".." element before
// resolution. Proposals must name their targets directly.
func HasTraversal(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
