// Package engine orchestrates scan, collision resolution, move execution,
// archive handling, cleanup and undo for one root at a time.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/archive"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/config"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/filter"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/log"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/mover"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/policy"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/scanner"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/state"
	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

var (
	// ErrRunInProgress is returned when a second execution or an undo is
	// requested while a run holds the root.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrUndoUnavailable is returned when the last session performed an
	// overwrite, an extraction, or a dry run.
	ErrUndoUnavailable = errors.New("undo is not available for this session")
	// ErrNoRecords is returned when there is nothing to undo.
	ErrNoRecords = errors.New("no recorded moves to undo")
)

type Engine struct {
	cfg        *config.Config
	logger     *log.Logger
	journal    *state.Journal
	reportPath string

	runLock sync.Mutex

	mu               sync.Mutex
	phase            types.RunPhase
	stats            types.RunStats
	records          []types.MoveRecord
	lastReport       *types.RunReport
	progressCallback ProgressCallback
}

func New(cfg *config.Config) (*Engine, error) {
	var logger *log.Logger
	var err error
	if cfg.LogFile != "" {
		logger, err = log.New(cfg.LogFile, cfg.LogJSON, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open session log: %w", err)
		}
	} else {
		logger = log.Discard()
	}

	journal, err := state.Load(cfg.JournalFile)
	if err != nil {
		logger.Error("failed to load undo journal, starting empty", err)
		journal = state.New(cfg.JournalFile)
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		journal: journal,
		phase:   types.PhaseIdle,
	}
	if cfg.JournalFile != "" {
		e.reportPath = filepath.Join(filepath.Dir(cfg.JournalFile), "last_report.json")
		e.lastReport = loadReport(e.reportPath)
	}
	return e, nil
}

// loadReport restores the previous session's report so the report command
// works after the process that ran the flatten has exited.
func loadReport(path string) *types.RunReport {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var r types.RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil
	}
	return &r
}

func (e *Engine) saveReport(r *types.RunReport) {
	if e.reportPath == "" {
		return
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(e.reportPath, data, 0644); err != nil {
		e.logger.Error("failed to save session report", err)
	}
}

func (e *Engine) Close() error {
	return e.logger.Close()
}

func (e *Engine) SetProgressCallback(cb ProgressCallback) {
	e.mu.Lock()
	e.progressCallback = cb
	e.mu.Unlock()
}

func (e *Engine) emit(update ProgressUpdate) {
	e.mu.Lock()
	cb := e.progressCallback
	update.Phase = e.phase
	e.mu.Unlock()
	if cb != nil {
		cb(update)
	}
}

func (e *Engine) setPhase(p types.RunPhase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Phase returns the current engine state.
func (e *Engine) Phase() types.RunPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Records returns a copy of the current session's move log.
func (e *Engine) Records() []types.MoveRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.MoveRecord(nil), e.records...)
}

// LastReport returns the report of the most recently completed run, or nil.
func (e *Engine) LastReport() *types.RunReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

// Preview scans root with the filter and returns the result without
// touching the file system. Re-entrant; may run with different filters
// between executions.
func (e *Engine) Preview(root string, f types.ScanFilter) (*types.ScanResult, error) {
	ev, err := filter.Compile(f)
	if err != nil {
		return nil, &config.ValidationError{Field: "filter", Message: err.Error()}
	}

	e.setPhase(types.PhaseScanning)
	defer e.setPhase(types.PhaseIdle)

	s := scanner.New(ev)
	s.ErrorHook = func(path string, err error) {
		e.logger.Error("scan: skipping unreadable path "+path, err)
	}

	return s.Scan(root)
}

// Execute runs one flattening session. Cancellation through ctx is polled
// between per-file operations, never mid-move.
func (e *Engine) Execute(ctx context.Context, root string, f types.ScanFilter, pol types.DuplicatePolicy, opts types.FlattenOptions) (*types.RunStats, error) {
	if !e.runLock.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.runLock.Unlock()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &config.ValidationError{Field: "root", Message: err.Error()}
	}
	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		return nil, &config.ValidationError{Field: "root", Message: "not a directory: " + absRoot}
	}
	if !pol.Valid() {
		return nil, &config.ValidationError{Field: "policy", Message: "unknown policy: " + string(pol)}
	}
	ev, err := filter.Compile(f)
	if err != nil {
		return nil, &config.ValidationError{Field: "filter", Message: err.Error()}
	}
	if opts.ArchiveDir == "" {
		opts.ArchiveDir = "_archives"
	}

	e.mu.Lock()
	e.stats = types.RunStats{StartTime: time.Now()}
	e.records = nil
	e.mu.Unlock()

	e.setPhase(types.PhaseScanning)
	e.logger.Info("starting scan: " + absRoot)
	e.emit(ProgressUpdate{Type: "status", Message: "scanning source tree"})

	s := scanner.New(ev)
	s.ErrorHook = func(path string, err error) {
		e.logger.Error("scan: skipping unreadable path "+path, err)
	}
	scan, err := s.Scan(absRoot)
	if err != nil {
		e.setPhase(types.PhaseFailed)
		e.logger.Error("scan failed", err)
		e.emit(ProgressUpdate{Type: "error", Error: err.Error()})
		return e.statsSnapshot(), err
	}

	e.mu.Lock()
	e.stats.TotalFiles = scan.FileCount
	e.stats.TotalBytes = scan.TotalBytes
	e.stats.ArchivesFound = scan.ArchivesFound
	e.mu.Unlock()

	e.logger.Info(fmt.Sprintf("found %d files in %d subfolders", scan.FileCount, scan.SubfolderCount))
	e.emit(ProgressUpdate{Type: "scan", Total: scan.FileCount, Scan: scan})

	e.setPhase(types.PhaseExecuting)

	resolver := policy.NewResolver(absRoot, pol)
	archiveDir := filepath.Join(absRoot, opts.ArchiveDir)
	if opts.ArchiveOriginals {
		// The archive folder must never be claimed by a flattened file.
		resolver.Claim(opts.ArchiveDir)
	}

	mv := mover.New(opts.HashVerify)
	cancelled := false

	if opts.ExtractArchives {
		cancelled = e.extractPhase(ctx, absRoot, scan, ev, resolver, opts, archiveDir)
	} else if opts.ArchiveOriginals {
		cancelled = e.archivePhase(ctx, scan, opts, archiveDir)
	}

	if !cancelled {
		cancelled = e.movePhase(ctx, scan, resolver, mv, opts)
	}

	if opts.RemoveEmpty && !cancelled && !opts.DryRun {
		removed := e.removeEmptyDirs(absRoot, archiveDir)
		e.mu.Lock()
		e.stats.FoldersRemoved = removed
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.stats.Cancelled = cancelled
	e.stats.EndTime = time.Now()
	e.stats.Duration = e.stats.EndTime.Sub(e.stats.StartTime)
	e.stats.UndoAvailable = !opts.DryRun &&
		!opts.ExtractArchives &&
		e.stats.Overwritten == 0 &&
		len(e.records) > 0
	stats := e.stats
	records := append([]types.MoveRecord(nil), e.records...)
	lastReport := &types.RunReport{
		Root:      absRoot,
		Timestamp: stats.EndTime,
		Policy:    pol,
		Options:   opts,
		Stats:     stats,
	}
	e.lastReport = lastReport
	e.mu.Unlock()

	e.saveReport(lastReport)

	if cancelled {
		e.setPhase(types.PhaseCancelled)
	} else {
		e.setPhase(types.PhaseCompleted)
	}

	if !opts.DryRun {
		if err := e.journal.Replace(absRoot, records, stats.UndoAvailable); err != nil {
			e.logger.Error("failed to save undo journal", err)
		}
	}

	e.logger.Summary(stats)
	e.emit(ProgressUpdate{Type: "complete", Stats: &stats})

	return &stats, nil
}

func (e *Engine) statsSnapshot() *types.RunStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := e.stats
	return &stats
}

func (e *Engine) record(rec types.MoveRecord) {
	rec.Timestamp = time.Now()
	e.mu.Lock()
	e.records = append(e.records, rec)
	e.mu.Unlock()
	e.logger.LogMove(rec)
}

// movePhase relocates every non-archive candidate into the root.
// Returns true when the run was cancelled.
func (e *Engine) movePhase(ctx context.Context, scan *types.ScanResult, resolver *policy.Resolver, mv *mover.Mover, opts types.FlattenOptions) bool {
	skipZips := opts.ExtractArchives || opts.ArchiveOriginals

	processed := 0
	for _, entry := range scan.Entries {
		if ctx.Err() != nil {
			e.logger.Info("run cancelled")
			return true
		}
		if skipZips && scanner.IsArchive(entry.Name) {
			continue
		}

		processed++
		e.processEntry(entry, resolver, mv, opts, processed, scan.FileCount)
	}
	return false
}

func (e *Engine) processEntry(entry types.FileEntry, resolver *policy.Resolver, mv *mover.Mover, opts types.FlattenOptions, current, total int) {
	res := resolver.Resolve(entry.Name)
	if res.Skip {
		e.mu.Lock()
		e.stats.Skipped++
		e.mu.Unlock()
		e.logger.LogSkip(entry.Path)
		e.emitEntryProgress(current, total, entry.Path, "", "")
		return
	}

	if opts.DryRun {
		e.countMove(res.Kind, entry.Size)
		e.emitEntryProgress(current, total, entry.Path, res.DestPath, res.Kind)
		return
	}

	if res.Overwrite {
		if err := os.Remove(res.DestPath); err != nil && !os.IsNotExist(err) {
			e.fileError(entry.Path, err, current, total)
			return
		}
	}

	if err := mv.Move(entry.Path, res.DestPath); err != nil {
		e.fileError(entry.Path, err, current, total)
		return
	}

	e.record(types.MoveRecord{Source: entry.Path, Dest: res.DestPath, Kind: res.Kind})
	e.countMove(res.Kind, entry.Size)
	e.emitEntryProgress(current, total, entry.Path, res.DestPath, res.Kind)
}

// countMove tallies one relocation. The moved counter covers only plain
// moves; renamed and overwritten files have their own counters.
func (e *Engine) countMove(kind types.MoveKind, size int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch kind {
	case types.MoveKindRenamed:
		e.stats.Renamed++
	case types.MoveKindOverwritten:
		e.stats.Overwritten++
	default:
		e.stats.Moved++
	}
	e.stats.BytesMoved += size
}

func (e *Engine) fileError(path string, err error, current, total int) {
	e.mu.Lock()
	e.stats.Errors++
	e.mu.Unlock()
	e.logger.Error("failed to move "+path, err)
	e.emit(ProgressUpdate{
		Type:    "error",
		Current: current,
		Total:   total,
		Path:    path,
		Error:   err.Error(),
		Stats:   e.statsSnapshot(),
	})
}

func (e *Engine) emitEntryProgress(current, total int, path, dest string, kind types.MoveKind) {
	e.logger.Progress(current, total, filepath.Base(path))
	e.emit(ProgressUpdate{
		Type:    "progress",
		Current: current,
		Total:   total,
		Path:    path,
		Dest:    dest,
		Kind:    kind,
		Stats:   e.statsSnapshot(),
	})
}

// extractPhase unpacks each discovered archive into the root and, when
// requested, relocates the originals. Returns true on cancellation.
func (e *Engine) extractPhase(ctx context.Context, root string, scan *types.ScanResult, ev *filter.Evaluator, resolver *policy.Resolver, opts types.FlattenOptions, archiveDir string) bool {
	extractor := archive.NewExtractor(root, ev, resolver, opts.DryRun)

	index := 0
	for _, entry := range scan.Entries {
		if !scanner.IsArchive(entry.Name) {
			continue
		}
		if ctx.Err() != nil {
			e.logger.Info("run cancelled during extraction")
			return true
		}
		index++

		e.emit(ProgressUpdate{
			Type:    "extract",
			Current: index,
			Total:   scan.ArchivesFound,
			Path:    entry.Path,
			Message: "extracting " + entry.Name,
		})

		results, err := extractor.Extract(entry.Path)
		if err != nil {
			e.mu.Lock()
			e.stats.Errors++
			e.mu.Unlock()
			e.logger.Error("bad archive "+entry.Path, err)
			e.emit(ProgressUpdate{Type: "error", Path: entry.Path, Error: err.Error()})
			continue
		}

		for _, r := range results {
			switch {
			case r.Err != nil:
				e.mu.Lock()
				e.stats.Errors++
				e.mu.Unlock()
				e.logger.Error("extract "+entry.Name+": "+r.Name, r.Err)
			case r.Skipped:
				e.mu.Lock()
				e.stats.Skipped++
				e.mu.Unlock()
			default:
				e.mu.Lock()
				e.stats.ArchivesExtracted++
				e.stats.ExtractedBytes += r.Bytes
				if r.Overwrote {
					e.stats.Overwritten++
				}
				e.mu.Unlock()
				if !opts.DryRun {
					e.record(types.MoveRecord{Source: entry.Path, Dest: r.Dest, Kind: types.MoveKindExtracted})
				}
			}
		}

		if opts.ArchiveOriginals {
			e.archiveOriginal(entry.Path, archiveDir, opts.DryRun)
		}
	}

	return false
}

// archivePhase relocates archives without extracting them. Returns true on
// cancellation.
func (e *Engine) archivePhase(ctx context.Context, scan *types.ScanResult, opts types.FlattenOptions, archiveDir string) bool {
	for _, entry := range scan.Entries {
		if !scanner.IsArchive(entry.Name) {
			continue
		}
		if ctx.Err() != nil {
			e.logger.Info("run cancelled during archive relocation")
			return true
		}
		e.archiveOriginal(entry.Path, archiveDir, opts.DryRun)
	}
	return false
}

func (e *Engine) archiveOriginal(zipPath, archiveDir string, dryRun bool) {
	target, err := archive.MoveOriginal(zipPath, archiveDir, dryRun)
	if err != nil {
		e.mu.Lock()
		e.stats.Errors++
		e.mu.Unlock()
		e.logger.Error("failed to archive "+zipPath, err)
		return
	}

	e.mu.Lock()
	e.stats.ArchivesMoved++
	e.mu.Unlock()
	if !dryRun {
		e.record(types.MoveRecord{Source: zipPath, Dest: target, Kind: types.MoveKindArchived})
	}
}

// removeEmptyDirs removes now-empty directories bottom-up, sparing the root
// and the archive folder. Failures are logged, never fatal.
func (e *Engine) removeEmptyDirs(root, archiveDir string) int {
	var dirs []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root && path != archiveDir {
			dirs = append(dirs, path)
		}
		return nil
	})

	removed := 0
	// Reverse lexical order visits children before their parents.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Remove(dirs[i]); err == nil {
			removed++
		}
	}
	return removed
}
