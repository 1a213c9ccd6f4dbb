// Package filter implements the shared file/directory filter evaluator.
// Preview and execution both go through this package so that what the scan
// shows is exactly what the engine will touch.
package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

// Evaluator is a compiled ScanFilter. Build one with Compile; it is
// immutable and safe for reuse across preview and execution.
type Evaluator struct {
	includeExt      map[string]bool
	excludeExt      map[string]bool
	includePatterns []string
	excludePatterns []string
	excludeDirs     []string
	minSize         int64
	maxSize         int64
	includeHidden   bool
	maxDepth        int
	skipSymlinks    bool
}

// Compile validates the filter's glob patterns and builds an Evaluator.
func Compile(f types.ScanFilter) (*Evaluator, error) {
	for _, pat := range append(append([]string{}, f.IncludePatterns...), f.ExcludePatterns...) {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid glob pattern: %q", pat)
		}
	}
	for _, pat := range f.ExcludeDirs {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid exclude-dir pattern: %q", pat)
		}
	}

	return &Evaluator{
		includeExt:      extSet(f.IncludeExtensions),
		excludeExt:      extSet(f.ExcludeExtensions),
		includePatterns: f.IncludePatterns,
		excludePatterns: f.ExcludePatterns,
		excludeDirs:     f.ExcludeDirs,
		minSize:         f.MinSize,
		maxSize:         f.MaxSize,
		includeHidden:   f.IncludeHidden,
		maxDepth:        f.MaxDepth,
		skipSymlinks:    f.SkipSymlinks,
	}, nil
}

func extSet(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, ext := range exts {
		m[normalizeExt(ext)] = true
	}
	return m
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(ext), ".")
}

// SkipSymlinks reports whether symlinked files are excluded from scans.
func (e *Evaluator) SkipSymlinks() bool {
	return e.skipSymlinks
}

// Hidden reports whether a base name counts as hidden. Dotfile semantics
// are used on every platform for predictability.
func Hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// PruneDir reports whether a directory should be skipped entirely.
// depth is relative to the scan root (direct children = 1).
func (e *Evaluator) PruneDir(name string, depth int) bool {
	if e.maxDepth > 0 && depth > e.maxDepth {
		return true
	}
	if !e.includeHidden && Hidden(name) {
		return true
	}
	for _, pat := range e.excludeDirs {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// MatchFile reports whether a file passes the filter. name is the base
// filename; patterns are matched against it, never against the full path.
func (e *Evaluator) MatchFile(name string, size int64) bool {
	if !e.includeHidden && Hidden(name) {
		return false
	}

	ext := normalizeExt(extOf(name))
	if len(e.includeExt) > 0 && !e.includeExt[ext] {
		return false
	}
	if e.excludeExt[ext] {
		return false
	}

	if len(e.includePatterns) > 0 {
		matched := false
		for _, pat := range e.includePatterns {
			if ok, _ := doublestar.Match(pat, name); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range e.excludePatterns {
		if ok, _ := doublestar.Match(pat, name); ok {
			return false
		}
	}

	if e.minSize > 0 && size < e.minSize {
		return false
	}
	if e.maxSize > 0 && size > e.maxSize {
		return false
	}

	return true
}

func extOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return ""
	}
	return name[idx+1:]
}
