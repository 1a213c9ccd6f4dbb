package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/config"
	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := &config.Config{
		JournalFile: filepath.Join(t.TempDir(), "journal.json"),
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		w.Write([]byte(content))
	}
	zw.Close()
	writeFile(t, path, buf.String())
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func defaultOpts() types.FlattenOptions {
	return types.FlattenOptions{RemoveEmpty: true, ArchiveDir: "_archives"}
}

func TestExecute_FlattensNestedTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.txt"), "root file")
	writeFile(t, filepath.Join(root, "B", "y.txt"), "b")
	writeFile(t, filepath.Join(root, "B", "C", "z.txt"), "c")

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.Moved != 2 {
		t.Errorf("moved = %d, want 2", stats.Moved)
	}
	if stats.Renamed != 0 {
		t.Errorf("renamed = %d, want 0", stats.Renamed)
	}
	if stats.FoldersRemoved != 2 {
		t.Errorf("folders removed = %d, want 2", stats.FoldersRemoved)
	}

	for _, name := range []string{"x.txt", "y.txt", "z.txt"} {
		if !exists(filepath.Join(root, name)) {
			t.Errorf("%s missing from root", name)
		}
	}
	if exists(filepath.Join(root, "B")) {
		t.Error("emptied subfolder B should be removed")
	}
	if e.Phase() != types.PhaseCompleted {
		t.Errorf("phase = %s, want completed", e.Phase())
	}
}

func TestExecute_RenamePolicyOnCollision(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.txt"), "original")
	writeFile(t, filepath.Join(root, "sub", "x.txt"), "duplicate")

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.Moved != 0 || stats.Renamed != 1 {
		t.Errorf("moved = %d renamed = %d, want 0 and 1", stats.Moved, stats.Renamed)
	}

	data, err := os.ReadFile(filepath.Join(root, "x_1.txt"))
	if err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
	if string(data) != "duplicate" {
		t.Errorf("x_1.txt content = %q", data)
	}
	original, _ := os.ReadFile(filepath.Join(root, "x.txt"))
	if string(original) != "original" {
		t.Error("root occupant should be untouched under rename policy")
	}
}

func TestExecute_MixedMoveAndRenameCounters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.txt"), "root")
	writeFile(t, filepath.Join(root, "B", "x.txt"), "dup")
	writeFile(t, filepath.Join(root, "B", "y.txt"), "y")
	writeFile(t, filepath.Join(root, "B", "C", "z.txt"), "z")

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.Moved != 2 {
		t.Errorf("moved = %d, want 2 (y.txt and z.txt)", stats.Moved)
	}
	if stats.Renamed != 1 {
		t.Errorf("renamed = %d, want 1 (duplicate x.txt)", stats.Renamed)
	}
	if !exists(filepath.Join(root, "x_1.txt")) {
		t.Error("duplicate should land as x_1.txt")
	}
}

func TestExecute_SkipPolicyLeavesSourceInPlace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.txt"), "original")
	writeFile(t, filepath.Join(root, "sub", "x.txt"), "duplicate")

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicySkip, defaultOpts())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.Skipped != 1 || stats.Moved != 0 {
		t.Errorf("skipped = %d moved = %d, want 1 and 0", stats.Skipped, stats.Moved)
	}
	if !exists(filepath.Join(root, "sub", "x.txt")) {
		t.Error("skipped file must stay at its source")
	}
	if exists(filepath.Join(root, "sub")) {
		// The folder still holds the skipped file, so it must survive cleanup.
		data, _ := os.ReadFile(filepath.Join(root, "sub", "x.txt"))
		if string(data) != "duplicate" {
			t.Error("skipped file content changed")
		}
	} else {
		t.Error("folder holding a skipped file was removed")
	}
}

func TestExecute_OverwritePolicyReplacesOccupant(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.txt"), "old")
	writeFile(t, filepath.Join(root, "sub", "x.txt"), "new")

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyOverwrite, defaultOpts())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.Overwritten != 1 || stats.Moved != 0 {
		t.Errorf("overwritten = %d moved = %d, want 1 and 0", stats.Overwritten, stats.Moved)
	}
	data, _ := os.ReadFile(filepath.Join(root, "x.txt"))
	if string(data) != "new" {
		t.Errorf("x.txt content = %q, want overwritten value", data)
	}
	if stats.UndoAvailable {
		t.Error("overwrites must disqualify undo")
	}
}

func TestExecute_DryRunTouchesNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")

	opts := defaultOpts()
	opts.DryRun = true

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, opts)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.Moved != 2 {
		t.Errorf("dry run moved = %d, want 2 simulated", stats.Moved)
	}
	if !exists(filepath.Join(root, "sub", "a.txt")) || !exists(filepath.Join(root, "sub", "b.txt")) {
		t.Error("dry run must not relocate files")
	}
	if stats.FoldersRemoved != 0 {
		t.Error("dry run must not remove folders")
	}
	if stats.UndoAvailable {
		t.Error("dry run must not offer undo")
	}
}

func TestExecute_FilterLimitsCandidates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "keep.txt"), "keep")
	writeFile(t, filepath.Join(root, "sub", "drop.log"), "drop")

	f := types.ScanFilter{IncludeExtensions: []string{"txt"}}

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, f, types.PolicyRename, defaultOpts())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.Moved != 1 {
		t.Errorf("moved = %d, want 1", stats.Moved)
	}
	if !exists(filepath.Join(root, "keep.txt")) {
		t.Error("matching file not moved")
	}
	if !exists(filepath.Join(root, "sub", "drop.log")) {
		t.Error("filtered file must stay put")
	}
}

func TestExecute_InvalidInputs(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Execute(ctx, filepath.Join(t.TempDir(), "missing"), types.ScanFilter{}, types.PolicyRename, defaultOpts()); err == nil {
		t.Error("expected error for nonexistent root")
	}

	root := t.TempDir()
	if _, err := e.Execute(ctx, root, types.ScanFilter{}, "merge", defaultOpts()); err == nil {
		t.Error("expected error for unknown policy")
	}

	bad := types.ScanFilter{IncludePatterns: []string{"[invalid"}}
	if _, err := e.Execute(ctx, root, bad, types.PolicyRename, defaultOpts()); err == nil {
		t.Error("expected error for malformed glob")
	}
}

func TestExecute_CancelledContextStopsBeforeMoving(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.txt"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t)
	stats, err := e.Execute(ctx, root, types.ScanFilter{}, types.PolicyRename, defaultOpts())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if !stats.Cancelled {
		t.Error("stats should mark the run cancelled")
	}
	if stats.Moved != 0 {
		t.Errorf("moved = %d, want 0 after pre-run cancel", stats.Moved)
	}
	if !exists(filepath.Join(root, "sub", "a.txt")) {
		t.Error("cancelled run must leave files in place")
	}
	if e.Phase() != types.PhaseCancelled {
		t.Errorf("phase = %s, want cancelled", e.Phase())
	}
}

func TestExecute_ProgressCallbackSeesEveryFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "1.txt"), "1")
	writeFile(t, filepath.Join(root, "b", "2.txt"), "2")

	var progress []ProgressUpdate
	var complete int

	e := newTestEngine(t)
	e.SetProgressCallback(func(u ProgressUpdate) {
		switch u.Type {
		case "progress":
			progress = append(progress, u)
		case "complete":
			complete++
		}
	})

	if _, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if len(progress) != 2 {
		t.Fatalf("progress updates = %d, want 2", len(progress))
	}
	if progress[0].Current != 1 || progress[0].Total != 2 {
		t.Errorf("first update = %d/%d, want 1/2", progress[0].Current, progress[0].Total)
	}
	if progress[1].Current != 2 {
		t.Errorf("second update current = %d, want 2", progress[1].Current)
	}
	if complete != 1 {
		t.Errorf("complete updates = %d, want 1", complete)
	}
}

func TestUndo_RestoresOriginalTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "B", "y.txt"), "b")
	writeFile(t, filepath.Join(root, "B", "C", "z.txt"), "c")

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !stats.UndoAvailable {
		t.Fatal("undo should be available after a clean run")
	}

	result, err := e.Undo()
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if result.Restored != 2 || result.Failed != 0 {
		t.Errorf("restored = %d failed = %d, want 2 and 0", result.Restored, result.Failed)
	}

	if !exists(filepath.Join(root, "B", "y.txt")) {
		t.Error("y.txt not restored to B")
	}
	if !exists(filepath.Join(root, "B", "C", "z.txt")) {
		t.Error("z.txt not restored to B/C, parent folders should be recreated")
	}
	if exists(filepath.Join(root, "y.txt")) || exists(filepath.Join(root, "z.txt")) {
		t.Error("flattened copies should be gone after undo")
	}

	if _, err := e.Undo(); err != ErrNoRecords {
		t.Errorf("second undo error = %v, want ErrNoRecords", err)
	}
}

func TestUndo_RestoresRenamedFileUnderOriginalName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.txt"), "original")
	writeFile(t, filepath.Join(root, "sub", "x.txt"), "duplicate")

	e := newTestEngine(t)
	if _, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if _, err := e.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "sub", "x.txt"))
	if err != nil {
		t.Fatalf("original path not restored: %v", err)
	}
	if string(data) != "duplicate" {
		t.Errorf("restored content = %q", data)
	}
	if exists(filepath.Join(root, "x_1.txt")) {
		t.Error("renamed copy should be gone after undo")
	}
}

func TestUndo_UnavailableAfterOverwrite(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.txt"), "old")
	writeFile(t, filepath.Join(root, "sub", "x.txt"), "new")

	e := newTestEngine(t)
	if _, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyOverwrite, defaultOpts()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if _, err := e.Undo(); err != ErrUndoUnavailable {
		t.Errorf("undo error = %v, want ErrUndoUnavailable", err)
	}
}

func TestUndo_SurvivesProcessRestart(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.txt"), "a")

	journal := filepath.Join(t.TempDir(), "journal.json")

	e1, err := New(&config.Config{JournalFile: journal})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	if _, err := e1.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	e1.Close()

	// A fresh engine on the same journal must still be able to undo.
	e2, err := New(&config.Config{JournalFile: journal})
	if err != nil {
		t.Fatalf("create second engine: %v", err)
	}
	defer e2.Close()

	result, err := e2.Undo()
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if result.Restored != 1 {
		t.Errorf("restored = %d, want 1", result.Restored)
	}
	if !exists(filepath.Join(root, "sub", "a.txt")) {
		t.Error("file not restored after restart")
	}
}

func TestUndo_ReportsMissingFilesAsPartial(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")

	e := newTestEngine(t)
	if _, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	os.Remove(filepath.Join(root, "a.txt"))

	result, err := e.Undo()
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if result.Restored != 1 || result.Failed != 1 {
		t.Errorf("restored = %d failed = %d, want 1 and 1", result.Restored, result.Failed)
	}
	if !result.Partial() {
		t.Error("result should report a partial undo")
	}
	if !exists(filepath.Join(root, "sub", "b.txt")) {
		t.Error("surviving file should still be restored")
	}
}

func TestExecute_ExtractArchives(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "sub", "bundle.zip"), map[string]string{
		"docs/readme.txt": "hello",
		"img/photo.dat":   "pixels",
	})
	writeFile(t, filepath.Join(root, "sub", "plain.txt"), "plain")

	opts := defaultOpts()
	opts.ExtractArchives = true

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, opts)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.ArchivesExtracted != 2 {
		t.Errorf("archives extracted = %d, want 2 files", stats.ArchivesExtracted)
	}
	if !exists(filepath.Join(root, "readme.txt")) || !exists(filepath.Join(root, "photo.dat")) {
		t.Error("archive contents should be flattened into root")
	}
	if !exists(filepath.Join(root, "plain.txt")) {
		t.Error("regular files still move alongside extraction")
	}
	if !exists(filepath.Join(root, "sub", "bundle.zip")) {
		t.Error("archive should stay put when archive_originals is off")
	}
	if stats.UndoAvailable {
		t.Error("extraction must disqualify undo")
	}
}

func TestExecute_ArchiveOriginals(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "sub", "bundle.zip"), map[string]string{
		"inner.txt": "data",
	})

	opts := defaultOpts()
	opts.ExtractArchives = true
	opts.ArchiveOriginals = true

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, opts)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.ArchivesMoved != 1 {
		t.Errorf("archives moved = %d, want 1", stats.ArchivesMoved)
	}
	if !exists(filepath.Join(root, "_archives", "bundle.zip")) {
		t.Error("processed archive should land in _archives")
	}
	if !exists(filepath.Join(root, "inner.txt")) {
		t.Error("archive contents should be extracted")
	}
	if exists(filepath.Join(root, "sub")) {
		t.Error("emptied subfolder should be removed")
	}
	if !exists(filepath.Join(root, "_archives")) {
		t.Error("archive folder must survive empty-folder cleanup")
	}
}

func TestExecute_ArchiveOriginalsWithoutExtraction(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "sub", "bundle.zip"), map[string]string{
		"inner.txt": "data",
	})

	opts := defaultOpts()
	opts.ArchiveOriginals = true

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, opts)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if stats.ArchivesMoved != 1 {
		t.Errorf("archives moved = %d, want 1", stats.ArchivesMoved)
	}
	if !exists(filepath.Join(root, "_archives", "bundle.zip")) {
		t.Error("archive should be relocated without extraction")
	}
	if exists(filepath.Join(root, "inner.txt")) {
		t.Error("contents must not be extracted when extraction is off")
	}
}

func TestExecute_CorruptArchiveIsNonFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "broken.zip"), "not a zip")
	writeFile(t, filepath.Join(root, "sub", "fine.txt"), "ok")

	opts := defaultOpts()
	opts.ExtractArchives = true

	e := newTestEngine(t)
	stats, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, opts)
	if err != nil {
		t.Fatalf("corrupt archive should not abort the run: %v", err)
	}

	if stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", stats.Errors)
	}
	if !exists(filepath.Join(root, "fine.txt")) {
		t.Error("remaining files should still be processed")
	}
}

func TestExecute_SecondRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.txt"), "a")

	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Execute(ctx, root, types.ScanFilter{}, types.PolicySkip, defaultOpts()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	stats, err := e.Execute(ctx, root, types.ScanFilter{}, types.PolicySkip, defaultOpts())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if stats.Moved != 0 || stats.Skipped != 0 {
		t.Errorf("flattened tree should yield no work, got moved=%d skipped=%d", stats.Moved, stats.Skipped)
	}
}

func TestPreview_DoesNotTouchFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.zip"), "zip")

	e := newTestEngine(t)
	scan, err := e.Preview(root, types.ScanFilter{})
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}

	if scan.FileCount != 2 {
		t.Errorf("file count = %d, want 2", scan.FileCount)
	}
	if scan.ArchivesFound != 1 {
		t.Errorf("archives found = %d, want 1", scan.ArchivesFound)
	}
	if !exists(filepath.Join(root, "sub", "a.txt")) {
		t.Error("preview must not move files")
	}
	if e.Phase() != types.PhaseIdle {
		t.Errorf("phase after preview = %s, want idle", e.Phase())
	}
}

func TestLastReport_PopulatedAfterRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.txt"), "a")

	e := newTestEngine(t)
	if e.LastReport() != nil {
		t.Fatal("report should be nil before any run")
	}

	if _, err := e.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	report := e.LastReport()
	if report == nil {
		t.Fatal("report missing after run")
	}
	if report.Root != root {
		t.Errorf("report root = %s, want %s", report.Root, root)
	}
	if report.Policy != types.PolicyRename {
		t.Errorf("report policy = %s", report.Policy)
	}
	if report.Stats.Moved != 1 {
		t.Errorf("report moved = %d, want 1", report.Stats.Moved)
	}
}

func TestLastReport_SurvivesProcessRestart(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.txt"), "a")

	journal := filepath.Join(t.TempDir(), "journal.json")

	e1, err := New(&config.Config{JournalFile: journal})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	if _, err := e1.Execute(context.Background(), root, types.ScanFilter{}, types.PolicyRename, defaultOpts()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	e1.Close()

	e2, err := New(&config.Config{JournalFile: journal})
	if err != nil {
		t.Fatalf("create second engine: %v", err)
	}
	defer e2.Close()

	report := e2.LastReport()
	if report == nil {
		t.Fatal("report should be restored from disk")
	}
	if report.Stats.Moved != 1 {
		t.Errorf("restored report moved = %d, want 1", report.Stats.Moved)
	}
}
