// Package types defines core data structures shared across FolderFlatten modules.
package types

import (
	"time"
)

// FileEntry represents a scanned file slated for flattening.
type FileEntry struct {
	// Path is the absolute path to the source file.
	Path string
	// Name is the base filename.
	Name string
	// Size is the file size in bytes.
	Size int64
	// ModTime is the file modification time.
	ModTime time.Time
	// Depth is the number of directories between the scan root and the file
	// (a file directly inside root has depth 0).
	Depth int
	// IsSymlink indicates the entry is a symbolic link.
	IsSymlink bool
}

// ScanFilter configures which files and directories a scan considers.
// A zero value matches everything except hidden files.
type ScanFilter struct {
	// IncludeExtensions limits matches to these extensions when non-empty (dot optional, case-insensitive).
	IncludeExtensions []string `yaml:"include_extensions" json:"include_extensions"`
	// ExcludeExtensions rejects these extensions.
	ExcludeExtensions []string `yaml:"exclude_extensions" json:"exclude_extensions"`
	// IncludePatterns are shell globs matched against the base filename; when non-empty at least one must match.
	IncludePatterns []string `yaml:"include_patterns" json:"include_patterns"`
	// ExcludePatterns are shell globs; any match rejects the file.
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
	// MinSize is the minimum file size in bytes (0 = no lower bound).
	MinSize int64 `yaml:"min_size" json:"min_size"`
	// MaxSize is the maximum file size in bytes (0 = no upper bound).
	MaxSize int64 `yaml:"max_size" json:"max_size"`
	// IncludeHidden includes dotfiles when set.
	IncludeHidden bool `yaml:"include_hidden" json:"include_hidden"`
	// ExcludeDirs prunes directories whose name matches any of these names or globs.
	ExcludeDirs []string `yaml:"exclude_dirs" json:"exclude_dirs"`
	// MaxDepth prunes directories deeper than this relative depth (0 = unlimited).
	MaxDepth int `yaml:"max_depth" json:"max_depth"`
	// SkipSymlinks excludes symbolic links from the scan.
	SkipSymlinks bool `yaml:"skip_symlinks" json:"skip_symlinks"`
}

// ScanResult aggregates one read-only scan of the source tree.
type ScanResult struct {
	// FileCount is the number of flatten candidates found.
	FileCount int `json:"file_count"`
	// TotalBytes is the combined size of all candidates.
	TotalBytes int64 `json:"total_bytes"`
	// SubfolderCount is the number of non-pruned directories below the root.
	SubfolderCount int `json:"subfolder_count"`
	// EstimatedDuplicates counts base-name collisions among candidates and
	// against names already present in the root. Informational only:
	// execution resolves collisions incrementally and may arrive at a
	// different count.
	EstimatedDuplicates int `json:"estimated_duplicates"`
	// ArchivesFound is the number of .zip candidates discovered.
	ArchivesFound int `json:"archives_found"`
	// Entries lists the candidates in discovery order.
	Entries []FileEntry `json:"entries,omitempty"`
}

// DuplicatePolicy selects how name collisions at the destination are handled.
type DuplicatePolicy string

const (
	PolicyRename    DuplicatePolicy = "rename"
	PolicyOverwrite DuplicatePolicy = "overwrite"
	PolicySkip      DuplicatePolicy = "skip"
)

// Valid reports whether the policy is one of the recognized values.
func (p DuplicatePolicy) Valid() bool {
	switch p {
	case PolicyRename, PolicyOverwrite, PolicySkip:
		return true
	}
	return false
}

// MoveKind classifies a recorded file system mutation.
type MoveKind string

const (
	MoveKindMoved       MoveKind = "moved"
	MoveKindRenamed     MoveKind = "renamed"
	MoveKindOverwritten MoveKind = "overwritten"
	MoveKindExtracted   MoveKind = "extracted"
	MoveKindArchived    MoveKind = "archived"
)

// MoveRecord records one executed move or extraction. A record exists only
// for mutations that actually happened; the record log is the single source
// of truth for undo.
type MoveRecord struct {
	Source    string    `json:"source"`
	Dest      string    `json:"dest"`
	Kind      MoveKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// RunPhase is the flattening engine state.
type RunPhase string

const (
	PhaseIdle      RunPhase = "idle"
	PhaseScanning  RunPhase = "scanning"
	PhaseExecuting RunPhase = "executing"
	PhaseCompleted RunPhase = "completed"
	PhaseCancelled RunPhase = "cancelled"
	PhaseFailed    RunPhase = "failed"
)

// FlattenOptions tunes one execution session.
type FlattenOptions struct {
	// ExtractArchives extracts .zip contents into the flatten set.
	// Enabling it disqualifies the session from undo.
	ExtractArchives bool `yaml:"extract_archives" json:"extract_archives"`
	// ArchiveOriginals moves processed .zip files into ArchiveDir under the root.
	ArchiveOriginals bool `yaml:"archive_originals" json:"archive_originals"`
	// ArchiveDir is the subfolder for archived originals (default "_archives").
	ArchiveDir string `yaml:"archive_dir" json:"archive_dir"`
	// RemoveEmpty removes now-empty subfolders after moving.
	RemoveEmpty bool `yaml:"remove_empty" json:"remove_empty"`
	// DryRun simulates without touching the file system.
	DryRun bool `yaml:"dry_run" json:"dry_run"`
	// HashVerify verifies fallback copies with sha256 before the source is deleted.
	HashVerify bool `yaml:"hash_verify" json:"hash_verify"`
}

// RunStats contains counters for one execution session.
type RunStats struct {
	TotalFiles        int           `json:"total_files"`
	TotalBytes        int64         `json:"total_bytes"`
	Moved             int           `json:"moved"`
	Skipped           int           `json:"skipped"`
	Renamed           int           `json:"renamed"`
	Overwritten       int           `json:"overwritten"`
	Errors            int           `json:"errors"`
	FoldersRemoved    int           `json:"folders_removed"`
	ArchivesFound     int           `json:"archives_found"`
	ArchivesExtracted int           `json:"archives_extracted"`
	ArchivesMoved     int           `json:"archives_moved"`
	BytesMoved        int64         `json:"bytes_moved"`
	ExtractedBytes    int64         `json:"extracted_bytes"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	Duration          time.Duration `json:"duration"`
	Cancelled         bool          `json:"cancelled"`
	UndoAvailable     bool          `json:"undo_available"`
}

// RunReport is the exportable snapshot of a completed session.
type RunReport struct {
	Root      string          `json:"root" yaml:"root"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
	Policy    DuplicatePolicy `json:"policy" yaml:"policy"`
	Options   FlattenOptions  `json:"options" yaml:"options"`
	Stats     RunStats        `json:"stats" yaml:"stats"`
}

// UndoResult describes the outcome of replaying a session's move log.
type UndoResult struct {
	// Restored is the number of records successfully reversed.
	Restored int `json:"restored"`
	// Failed is the number of records that could not be reversed.
	Failed int `json:"failed"`
	// Errors lists per-record failure descriptions.
	Errors []string `json:"errors,omitempty"`
}

// Partial reports whether some records could not be reversed.
func (r UndoResult) Partial() bool {
	return r.Failed > 0
}

// RunStatus marks a history entry as successful or failed.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunHistoryEntry is a single persisted session record.
type RunHistoryEntry struct {
	ID        string    `json:"id"`
	Report    RunReport `json:"report"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RunHistory stores the collection of past sessions, newest first.
type RunHistory struct {
	Entries   []RunHistoryEntry `json:"entries"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// UserSettings holds the web UI's remembered form values.
type UserSettings struct {
	Root      string          `json:"root"`
	Filter    ScanFilter      `json:"filter"`
	Policy    DuplicatePolicy `json:"policy"`
	Options   FlattenOptions  `json:"options"`
	LogFile   string          `json:"log_file"`
	LogJSON   bool            `json:"log_json"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PathHistory stores recently used root paths for autocomplete.
type PathHistory struct {
	Roots     []string  `json:"roots"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigPreset is a saved named configuration.
type ConfigPreset struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Root        string          `json:"root,omitempty"`
	Filter      ScanFilter      `json:"filter"`
	Policy      DuplicatePolicy `json:"policy"`
	Options     FlattenOptions  `json:"options"`
	CreatedAt   time.Time       `json:"created_at"`
}
