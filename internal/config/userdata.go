package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

// UserDataManager manages user data for the web UI (settings, path history,
// run history).
type UserDataManager struct {
	dataDir string
}

// validatePath rejects paths carrying HTML/script fragments before they are
// persisted and echoed back to the web UI.
func validatePath(path string) error {
	if path == "" {
		return nil
	}

	lowerPath := strings.ToLower(path)

	htmlTagPatterns := []string{
		"<script",
		"</script",
		"<iframe",
		"<object",
		"<embed",
		"<img",
	}
	for _, pattern := range htmlTagPatterns {
		if strings.Contains(lowerPath, pattern) {
			return fmt.Errorf("path contains HTML tag pattern: %s", pattern)
		}
	}

	dangerousPatterns := []string{
		"javascript:",
		"onerror=",
		"onload=",
		"onclick=",
		"onmouseover=",
	}
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerPath, pattern) {
			return fmt.Errorf("path contains potentially malicious pattern: %s", pattern)
		}
	}

	if len(path) > 4096 {
		return fmt.Errorf("path too long (max 4096 characters)")
	}

	return nil
}

// NewUserDataManager creates a manager rooted at ~/.folderflatten.
func NewUserDataManager() (*UserDataManager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".folderflatten")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &UserDataManager{dataDir: dir}, nil
}

// NewUserDataManagerAt creates a manager rooted at dir. Used by tests.
func NewUserDataManagerAt(dir string) (*UserDataManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &UserDataManager{dataDir: dir}, nil
}

func (m *UserDataManager) writeAtomic(filename string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filename), err)
	}

	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(filename), err)
	}
	if err := os.Rename(tmpFile, filename); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(filename), err)
	}

	return nil
}

// SaveSettings saves user settings to disk.
func (m *UserDataManager) SaveSettings(settings *types.UserSettings) error {
	if err := validatePath(settings.Root); err != nil {
		return &ValidationError{
			Field:   "root",
			Message: fmt.Sprintf("invalid root path: %v", err),
		}
	}

	settings.UpdatedAt = time.Now()
	return m.writeAtomic(filepath.Join(m.dataDir, "settings.json"), settings)
}

// LoadSettings loads user settings, falling back to defaults when the file
// does not exist.
func (m *UserDataManager) LoadSettings() (*types.UserSettings, error) {
	data, err := os.ReadFile(filepath.Join(m.dataDir, "settings.json"))
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &types.UserSettings{
				Policy:  cfg.Policy,
				Options: cfg.Options,
				LogFile: cfg.LogFile,
			}, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings types.UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &settings, nil
}

// SavePathHistory saves the recently used root paths.
func (m *UserDataManager) SavePathHistory(history *types.PathHistory) error {
	for _, path := range history.Roots {
		if err := validatePath(path); err != nil {
			return &ValidationError{
				Field:   "path_history",
				Message: fmt.Sprintf("invalid root path in history: %v", err),
			}
		}
	}

	history.UpdatedAt = time.Now()
	return m.writeAtomic(filepath.Join(m.dataDir, "path-history.json"), history)
}

// LoadPathHistory loads the path history, empty when none is saved yet.
func (m *UserDataManager) LoadPathHistory() (*types.PathHistory, error) {
	data, err := os.ReadFile(filepath.Join(m.dataDir, "path-history.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &types.PathHistory{Roots: []string{}, UpdatedAt: time.Now()}, nil
		}
		return nil, fmt.Errorf("failed to read path history file: %w", err)
	}

	var history types.PathHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal path history: %w", err)
	}

	return &history, nil
}

// SaveRunHistory saves the run history to disk.
func (m *UserDataManager) SaveRunHistory(history *types.RunHistory) error {
	history.UpdatedAt = time.Now()
	return m.writeAtomic(filepath.Join(m.dataDir, "run-history.json"), history)
}

// LoadRunHistory loads the run history, empty when none exists.
func (m *UserDataManager) LoadRunHistory() (*types.RunHistory, error) {
	data, err := os.ReadFile(filepath.Join(m.dataDir, "run-history.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &types.RunHistory{Entries: []types.RunHistoryEntry{}, UpdatedAt: time.Now()}, nil
		}
		return nil, fmt.Errorf("failed to read run history file: %w", err)
	}

	var history types.RunHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run history: %w", err)
	}

	return &history, nil
}

// AddRunHistoryEntry prepends a session record, keeping the most recent 100.
func (m *UserDataManager) AddRunHistoryEntry(entry types.RunHistoryEntry) error {
	history, err := m.LoadRunHistory()
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}

	history.Entries = append([]types.RunHistoryEntry{entry}, history.Entries...)
	if len(history.Entries) > 100 {
		history.Entries = history.Entries[:100]
	}

	return m.SaveRunHistory(history)
}
