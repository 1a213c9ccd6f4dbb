// Package state persists the most recent session's move log so undo can be
// requested after the process that ran the flatten has exited. The journal
// is best effort; the in-memory record list owned by the engine remains the
// source of truth during a run.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

type Journal struct {
	mu       sync.RWMutex
	filePath string

	Root          string             `json:"root"`
	Records       []types.MoveRecord `json:"records"`
	UndoAvailable bool               `json:"undo_available"`
	CreatedAt     time.Time          `json:"created_at"`
}

func New(filePath string) *Journal {
	return &Journal{filePath: filePath}
}

// Load reads the journal at filePath. A missing file yields an empty
// journal, not an error.
func Load(filePath string) (*Journal, error) {
	j := New(filePath)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, j); err != nil {
		return nil, err
	}

	return j, nil
}

// Replace swaps the journal contents for a new session and saves.
func (j *Journal) Replace(root string, records []types.MoveRecord, undoAvailable bool) error {
	j.mu.Lock()
	j.Root = root
	j.Records = append([]types.MoveRecord(nil), records...)
	j.UndoAvailable = undoAvailable
	j.CreatedAt = time.Now()
	j.mu.Unlock()

	return j.Save()
}

// Clear empties the journal after a completed undo and saves.
func (j *Journal) Clear() error {
	j.mu.Lock()
	j.Root = ""
	j.Records = nil
	j.UndoAvailable = false
	j.mu.Unlock()

	return j.Save()
}

func (j *Journal) Save() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(j.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(j.filePath, data, 0644)
}

// Snapshot returns a copy of the recorded moves.
func (j *Journal) Snapshot() []types.MoveRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]types.MoveRecord(nil), j.Records...)
}
