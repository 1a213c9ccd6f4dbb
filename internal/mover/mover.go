// Package mover performs single-file relocations for the flattening engine.
package mover

import (
	"io"
	"os"
	"path/filepath"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/verify"
)

// Mover relocates files with os.Rename, falling back to copy-then-delete
// when source and destination sit on different file systems. The fallback
// stages through a .part file so a failed copy never leaves a truncated
// file at the final destination.
type Mover struct {
	verifier *verify.Verifier
}

func New(hashVerify bool) *Mover {
	return &Mover{verifier: verify.New(hashVerify)}
}

// Move relocates src to dest. dest's parent directory must already exist
// unless it is created here on demand; the occupant at dest (if any) must
// have been removed by the caller.
func (m *Mover) Move(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	// Rename failed, likely a cross-device move. Copy, verify, then
	// remove the source.
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	partPath := dest + ".part"
	if err := copyFile(src, partPath); err != nil {
		os.Remove(partPath)
		return err
	}
	os.Chtimes(partPath, info.ModTime(), info.ModTime())

	if err := os.Rename(partPath, dest); err != nil {
		os.Remove(partPath)
		return err
	}

	if err := m.verifier.Verify(src, dest, info.Size()); err != nil {
		// Keep the source; the engine reports this as a move error.
		os.Remove(dest)
		return err
	}

	return os.Remove(src)
}

func copyFile(src, dest string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, err = io.Copy(dstFile, srcFile)
	if closeErr := dstFile.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
