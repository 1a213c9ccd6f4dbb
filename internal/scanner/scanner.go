// Package scanner walks the source tree and collects flatten candidates.
// Scans are read-only; the same evaluator drives preview and execution.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/filter"
	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

type Scanner struct {
	ev *filter.Evaluator
	// ErrorHook is called for unreadable subtrees. The scan continues.
	ErrorHook func(path string, err error)
}

func New(ev *filter.Evaluator) *Scanner {
	return &Scanner{ev: ev}
}

// Scan traverses root and returns every filter-passing file found below a
// subfolder, in discovery order. Files already sitting in root are not
// candidates but still seed the duplicate estimate.
func (s *Scanner) Scan(root string) (*types.ScanResult, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid root: %s is not a directory", absRoot)
	}

	result := &types.ScanResult{}
	nameSeen := make(map[string]int)

	rootEntries, err := os.ReadDir(absRoot)
	if err != nil {
		return nil, fmt.Errorf("cannot read root: %w", err)
	}
	for _, de := range rootEntries {
		if !de.IsDir() {
			nameSeen[de.Name()]++
		}
	}

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if s.ErrorHook != nil {
				s.ErrorHook(path, err)
			}
			// Unreadable subtree: skip it, keep scanning.
			return nil
		}
		if path == absRoot {
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		sepCount := strings.Count(rel, string(filepath.Separator))

		if d.IsDir() {
			if s.ev.PruneDir(d.Name(), sepCount+1) {
				return fs.SkipDir
			}
			result.SubfolderCount++
			return nil
		}

		// Files directly in root are already flat.
		if sepCount == 0 {
			return nil
		}

		isSymlink := d.Type()&fs.ModeSymlink != 0
		if isSymlink && s.ev.SkipSymlinks() {
			return nil
		}

		fi, infoErr := d.Info()
		if infoErr != nil {
			if s.ErrorHook != nil {
				s.ErrorHook(path, infoErr)
			}
			return nil
		}

		if !s.ev.MatchFile(d.Name(), fi.Size()) {
			return nil
		}

		entry := types.FileEntry{
			Path:      path,
			Name:      d.Name(),
			Size:      fi.Size(),
			ModTime:   fi.ModTime(),
			Depth:     sepCount,
			IsSymlink: isSymlink,
		}
		result.Entries = append(result.Entries, entry)
		result.FileCount++
		result.TotalBytes += fi.Size()
		nameSeen[d.Name()]++

		if IsArchive(d.Name()) {
			result.ArchivesFound++
		}

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	for _, count := range nameSeen {
		if count > 1 {
			result.EstimatedDuplicates += count - 1
		}
	}

	return result, nil
}

// IsArchive reports whether the filename looks like a zip archive.
// Case-insensitive so FILE.ZIP is caught on every platform.
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}
