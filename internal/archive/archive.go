// Package archive extracts zip contents into the flatten set and relocates
// processed archives into the archive subfolder.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/filter"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/policy"
)

// encryptedFlag is the general-purpose bit marking an encrypted zip entry.
// Encrypted entries are skipped; password support is out of scope.
const encryptedFlag = 0x1

// Extractor unpacks archives directly into the root, flattening any
// directory structure inside the zip. Every written file goes through the
// shared filter and collision resolver, exactly like a scanned candidate.
type Extractor struct {
	root     string
	ev       *filter.Evaluator
	resolver *policy.Resolver
	dryRun   bool
}

func NewExtractor(root string, ev *filter.Evaluator, resolver *policy.Resolver, dryRun bool) *Extractor {
	return &Extractor{root: root, ev: ev, resolver: resolver, dryRun: dryRun}
}

// FileResult describes the fate of one file inside an archive.
type FileResult struct {
	// Name is the flattened base name of the entry inside the archive.
	Name string
	// Dest is the final destination path; empty when skipped or failed.
	Dest string
	// Bytes is the uncompressed size written.
	Bytes int64
	// Skipped is set when the filter rejected the entry or the collision
	// policy resolved to skip.
	Skipped bool
	// Overwrote is set when an existing occupant was replaced.
	Overwrote bool
	// Err holds a per-file extraction failure; the archive continues.
	Err error
}

// Extract unpacks one archive. The returned error is archive-level (corrupt
// or unreadable zip); per-file problems are reported in the results.
func (e *Extractor) Extract(zipPath string) ([]FileResult, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open archive %s: %w", filepath.Base(zipPath), err)
	}
	defer zr.Close()

	var results []FileResult
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}

		name := filepath.Base(filepath.FromSlash(zf.Name))
		size := int64(zf.UncompressedSize64)

		if zf.Flags&encryptedFlag != 0 {
			results = append(results, FileResult{
				Name: name,
				Err:  fmt.Errorf("encrypted entry skipped: %s", zf.Name),
			})
			continue
		}

		if !e.ev.MatchFile(name, size) {
			results = append(results, FileResult{Name: name, Skipped: true})
			continue
		}

		res := e.resolver.Resolve(name)
		if res.Skip {
			results = append(results, FileResult{Name: name, Skipped: true})
			continue
		}

		if e.dryRun {
			results = append(results, FileResult{
				Name:      name,
				Dest:      res.DestPath,
				Bytes:     size,
				Overwrote: res.Overwrite,
			})
			continue
		}

		if res.Overwrite {
			if err := os.Remove(res.DestPath); err != nil && !os.IsNotExist(err) {
				results = append(results, FileResult{Name: name, Err: err})
				continue
			}
		}

		written, err := writeEntry(zf, res.DestPath)
		if err != nil {
			os.Remove(res.DestPath)
			results = append(results, FileResult{Name: name, Err: err})
			continue
		}

		results = append(results, FileResult{
			Name:      name,
			Dest:      res.DestPath,
			Bytes:     written,
			Overwrote: res.Overwrite,
		})
	}

	return results, nil
}

func writeEntry(zf *zip.File, dest string) (int64, error) {
	src, err := zf.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, src)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return written, err
}

// MoveOriginal relocates a processed archive into archiveDir, creating the
// directory on demand and renaming on collision. Returns the final path.
func MoveOriginal(zipPath, archiveDir string, dryRun bool) (string, error) {
	target := filepath.Join(archiveDir, filepath.Base(zipPath))
	if _, err := os.Stat(target); err == nil {
		target = uniquePath(target)
	}

	if dryRun {
		return target, nil
	}

	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", err
	}
	if err := os.Rename(zipPath, target); err != nil {
		return "", err
	}
	return target, nil
}

func uniquePath(path string) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := filepath.Base(path)
	stem = stem[:len(stem)-len(ext)]

	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
