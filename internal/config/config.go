package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

type Config struct {
	Root        string                `yaml:"root" json:"root"`
	Filter      types.ScanFilter      `yaml:"filter" json:"filter"`
	Policy      types.DuplicatePolicy `yaml:"policy" json:"policy"`
	Options     types.FlattenOptions  `yaml:"options" json:"options"`
	LogFile     string                `yaml:"log_file" json:"log_file"`
	LogJSON     bool                  `yaml:"log_json" json:"log_json"`
	JournalFile string                `yaml:"journal_file" json:"journal_file"`
	Addr        string                `yaml:"addr" json:"addr"`
}

func dataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".folderflatten")
}

func DefaultConfig() *Config {
	return &Config{
		Policy: types.PolicyRename,
		Options: types.FlattenOptions{
			ArchiveDir:  "_archives",
			RemoveEmpty: true,
		},
		LogFile:     filepath.Join(dataDir(), "folderflatten.log"),
		JournalFile: filepath.Join(dataDir(), "journal.json"),
		Addr:        "localhost:8080",
	}
}

func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration before any file system mutation.
// Failures here abort the operation with no side effects.
func (c *Config) Validate() error {
	if c.Root == "" {
		return &ValidationError{Field: "root", Message: "root path is required"}
	}

	info, err := os.Stat(c.Root)
	if err != nil {
		return &ValidationError{Field: "root", Message: "root path does not exist: " + c.Root}
	}
	if !info.IsDir() {
		return &ValidationError{Field: "root", Message: "root path is not a directory: " + c.Root}
	}

	if c.Policy == "" {
		c.Policy = types.PolicyRename
	}
	if !c.Policy.Valid() {
		return &ValidationError{Field: "policy", Message: "policy must be rename, overwrite, or skip"}
	}

	if c.Filter.MinSize < 0 || c.Filter.MaxSize < 0 {
		return &ValidationError{Field: "filter", Message: "size bounds must not be negative"}
	}
	if c.Filter.MinSize > 0 && c.Filter.MaxSize > 0 && c.Filter.MinSize > c.Filter.MaxSize {
		return &ValidationError{Field: "filter", Message: "min_size must not exceed max_size"}
	}
	if c.Filter.MaxDepth < 0 {
		return &ValidationError{Field: "filter", Message: "max_depth must not be negative"}
	}

	if c.Options.ArchiveDir == "" {
		c.Options.ArchiveDir = "_archives"
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(dataDir(), "folderflatten.log")
	}
	if c.JournalFile == "" {
		c.JournalFile = filepath.Join(dataDir(), "journal.json")
	}

	return nil
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
