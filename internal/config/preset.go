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

// PresetManager manages saved configuration presets.
type PresetManager struct {
	presetsDir string
}

// NewPresetManager creates a new preset manager.
func NewPresetManager() (*PresetManager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	presetsDir := filepath.Join(homeDir, ".folderflatten", "presets")
	if err := os.MkdirAll(presetsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create presets directory: %w", err)
	}

	return &PresetManager{presetsDir: presetsDir}, nil
}

// NewPresetManagerAt creates a preset manager rooted at dir. Used by tests.
func NewPresetManagerAt(dir string) (*PresetManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create presets directory: %w", err)
	}
	return &PresetManager{presetsDir: dir}, nil
}

// ConfigToPreset converts a Config to a named ConfigPreset.
func ConfigToPreset(cfg *Config, name, description string) *types.ConfigPreset {
	return &types.ConfigPreset{
		Name:        name,
		Description: description,
		Root:        cfg.Root,
		Filter:      cfg.Filter,
		Policy:      cfg.Policy,
		Options:     cfg.Options,
		CreatedAt:   time.Now(),
	}
}

// PresetToConfig converts a ConfigPreset back to a Config.
func PresetToConfig(preset *types.ConfigPreset) *Config {
	cfg := DefaultConfig()
	cfg.Root = preset.Root
	cfg.Filter = preset.Filter
	cfg.Policy = preset.Policy
	cfg.Options = preset.Options
	return cfg
}

func (pm *PresetManager) presetPath(name string) string {
	return filepath.Join(pm.presetsDir, sanitizeName(name)+".json")
}

// sanitizeName keeps preset filenames inside the presets directory.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(name)
}

// SavePreset saves a preset to disk.
func (pm *PresetManager) SavePreset(preset *types.ConfigPreset) error {
	if preset.Name == "" {
		return fmt.Errorf("preset name is required")
	}
	if preset.CreatedAt.IsZero() {
		preset.CreatedAt = time.Now()
	}

	data, err := json.MarshalIndent(preset, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	if err := os.WriteFile(pm.presetPath(preset.Name), data, 0644); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}

	return nil
}

// LoadPreset loads a preset by name.
func (pm *PresetManager) LoadPreset(name string) (*types.ConfigPreset, error) {
	data, err := os.ReadFile(pm.presetPath(name))
	if err != nil {
		return nil, fmt.Errorf("preset %q not found: %w", name, err)
	}

	var preset types.ConfigPreset
	if err := json.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preset: %w", err)
	}

	return &preset, nil
}

// ListPresets returns all saved presets sorted by filename.
func (pm *PresetManager) ListPresets() ([]*types.ConfigPreset, error) {
	entries, err := os.ReadDir(pm.presetsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets directory: %w", err)
	}

	var presets []*types.ConfigPreset
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(pm.presetsDir, entry.Name()))
		if err != nil {
			continue
		}

		var preset types.ConfigPreset
		if err := json.Unmarshal(data, &preset); err != nil {
			continue
		}
		presets = append(presets, &preset)
	}

	return presets, nil
}

// DeletePreset removes a preset by name.
func (pm *PresetManager) DeletePreset(name string) error {
	if err := os.Remove(pm.presetPath(name)); err != nil {
		return fmt.Errorf("failed to delete preset %q: %w", name, err)
	}
	return nil
}
