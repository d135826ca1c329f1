// Package sandbox confines caller-supplied paths to a trusted root directory.
//
// Every path that reaches the filesystem on behalf of a client goes through
// Resolve first. Resolution never requires the target to exist; callers check
// existence and type afterwards.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal reports a path that would leave the root.
var ErrPathTraversal = errors.New("path traversal")

// Sandbox resolves untrusted segments against a canonical root.
type Sandbox struct {
	root string
}

// New canonicalizes root and requires it to be an existing directory.
func New(root string) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("sandbox root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", canonical, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", canonical)
	}
	return &Sandbox{root: canonical}, nil
}

// Root returns the canonical root path.
func (s *Sandbox) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Resolve joins segments onto the root and returns the canonical absolute
// path, or ErrPathTraversal when the result is not the root or below it.
func (s *Sandbox) Resolve(segments ...string) (string, error) {
	if s == nil {
		return "", errors.New("sandbox is nil")
	}
	return resolve(s.root, segments)
}

// Contains reports whether path is the root or lies below it.
func (s *Sandbox) Contains(path string) bool {
	if s == nil {
		return false
	}
	return isWithin(s.root, path)
}

// Rel returns path relative to the root using forward slashes.
func (s *Sandbox) Rel(path string) (string, error) {
	if !s.Contains(path) {
		return "", ErrPathTraversal
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Resolve is the one-shot form of Sandbox.Resolve for a root that is
// already trusted but not yet canonical.
func Resolve(root string, segments ...string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	return resolve(canonicalize(abs), segments)
}

func resolve(root string, segments []string) (string, error) {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, root)
	for _, segment := range segments {
		if err := checkSegment(segment); err != nil {
			return "", err
		}
		parts = append(parts, segment)
	}

	// Lexical check first so a traversal is rejected before any filesystem call.
	joined := filepath.Join(parts...)
	if !isWithin(root, joined) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, strings.Join(segments, "/"))
	}

	canonical := canonicalize(joined)
	if !isWithin(root, canonical) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, strings.Join(segments, "/"))
	}
	return canonical, nil
}

func checkSegment(segment string) error {
	if strings.ContainsRune(segment, 0) {
		return fmt.Errorf("%w: segment contains NUL", ErrPathTraversal)
	}
	if filepath.IsAbs(segment) || filepath.VolumeName(segment) != "" {
		return fmt.Errorf("%w: absolute segment %q", ErrPathTraversal, segment)
	}
	if strings.HasPrefix(segment, "/") || strings.HasPrefix(segment, `\`) {
		return fmt.Errorf("%w: absolute segment %q", ErrPathTraversal, segment)
	}
	return nil
}

// canonicalize resolves symlinks on the longest existing prefix of path and
// re-appends the missing tail.
func canonicalize(path string) string {
	existing := filepath.Clean(path)
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return filepath.Clean(path)
		}
		tail = append(tail, filepath.Base(existing))
		existing = parent
	}
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
