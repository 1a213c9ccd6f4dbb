package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

// Undo replays the journaled move log in reverse, returning each file to
// the folder it came from. Original folders are recreated on demand. A
// record that cannot be reversed is reported and skipped; the journal is
// cleared afterwards either way, since a partially replayed log can no
// longer be trusted.
func (e *Engine) Undo() (*types.UndoResult, error) {
	if !e.runLock.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.runLock.Unlock()

	records := e.journal.Snapshot()
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if !e.journal.UndoAvailable {
		return nil, ErrUndoUnavailable
	}

	e.setPhase(types.PhaseExecuting)
	defer e.setPhase(types.PhaseIdle)

	e.logger.Info(fmt.Sprintf("undoing %d recorded moves", len(records)))

	result := &types.UndoResult{}
	total := len(records)
	for i := total - 1; i >= 0; i-- {
		rec := records[i]

		e.emit(ProgressUpdate{
			Type:    "undo",
			Current: total - i,
			Total:   total,
			Path:    rec.Dest,
			Dest:    rec.Source,
		})

		if err := restoreRecord(rec); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.Dest, err))
			e.logger.Error("undo failed for "+rec.Dest, err)
			continue
		}
		result.Restored++
	}

	e.mu.Lock()
	e.records = nil
	e.mu.Unlock()
	if err := e.journal.Clear(); err != nil {
		e.logger.Error("failed to clear undo journal", err)
	}

	e.logger.Info(fmt.Sprintf("undo complete: %d restored, %d failed", result.Restored, result.Failed))
	return result, nil
}

func restoreRecord(rec types.MoveRecord) error {
	if _, err := os.Stat(rec.Dest); err != nil {
		return fmt.Errorf("moved file missing: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(rec.Source), 0755); err != nil {
		return err
	}
	return os.Rename(rec.Dest, rec.Source)
}
