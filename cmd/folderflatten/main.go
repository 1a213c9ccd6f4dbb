package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/config"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/engine"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/report"
	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

var (
	appVersion = "0.1.0"

	cfgFile     string
	rootDir     string
	includeExt  []string
	excludeExt  []string
	includePat  []string
	excludePat  []string
	excludeDirs []string
	minSize     int64
	maxSize     int64
	maxDepth    int
	hidden      bool
	policy      string
	extract     bool
	archiveOrig bool
	archiveDir  string
	keepEmpty   bool
	dryRun      bool
	hashVerify  bool
	logFile     string
	logJSON     bool
	reportPath  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "folderflatten",
	Short: "Flatten nested folder hierarchies into a single directory",
	Long: `FolderFlatten moves every file from a folder's subdirectories up into
the folder itself, resolving name collisions by policy, optionally extracting
zip archives, and removing the emptied subfolders. Each session records its
moves so it can be undone.`,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Scan and show what a flatten would do, without moving anything",
	RunE:  runPreview,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Flatten the folder",
	RunE:  runFlatten,
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Reverse the most recent flatten session",
	RunE:  runUndo,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the last session report to a file",
	RunE:  runReport,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(appVersion)
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)

	for _, cmd := range []*cobra.Command{previewCmd, runCmd} {
		cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file path")
		cmd.Flags().StringVarP(&rootDir, "root", "r", "", "folder to flatten")
		cmd.Flags().StringSliceVarP(&includeExt, "include-ext", "e", nil, "file extensions to include")
		cmd.Flags().StringSliceVar(&excludeExt, "exclude-ext", nil, "file extensions to exclude")
		cmd.Flags().StringSliceVar(&includePat, "include", nil, "glob patterns files must match")
		cmd.Flags().StringSliceVar(&excludePat, "exclude", nil, "glob patterns that exclude files")
		cmd.Flags().StringSliceVar(&excludeDirs, "exclude-dir", nil, "directory names to skip entirely")
		cmd.Flags().Int64Var(&minSize, "min-size", 0, "minimum file size in bytes")
		cmd.Flags().Int64Var(&maxSize, "max-size", 0, "maximum file size in bytes (0=unlimited)")
		cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum folder depth to scan (0=unlimited)")
		cmd.Flags().BoolVar(&hidden, "hidden", false, "include hidden files")
	}

	runCmd.Flags().StringVarP(&policy, "policy", "p", "", "duplicate policy: rename, overwrite, skip")
	runCmd.Flags().BoolVar(&extract, "extract", false, "extract zip archives into the folder")
	runCmd.Flags().BoolVar(&archiveOrig, "archive-originals", false, "move processed zips into the archive folder")
	runCmd.Flags().StringVar(&archiveDir, "archive-dir", "", "archive folder name (default _archives)")
	runCmd.Flags().BoolVar(&keepEmpty, "keep-empty", false, "keep emptied subfolders")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate without moving files")
	runCmd.Flags().BoolVar(&hashVerify, "hash-verify", false, "verify cross-device moves with hash")
	runCmd.Flags().StringVar(&logFile, "log-file", "", "log file path")
	runCmd.Flags().BoolVar(&logJSON, "log-json", false, "output JSON logs")

	reportCmd.Flags().StringVarP(&reportPath, "out", "o", "report.json", "output path (.json or .yaml)")
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if rootDir != "" {
		cfg.Root = rootDir
	}
	if len(includeExt) > 0 {
		cfg.Filter.IncludeExtensions = includeExt
	}
	if len(excludeExt) > 0 {
		cfg.Filter.ExcludeExtensions = excludeExt
	}
	if len(includePat) > 0 {
		cfg.Filter.IncludePatterns = includePat
	}
	if len(excludePat) > 0 {
		cfg.Filter.ExcludePatterns = excludePat
	}
	if len(excludeDirs) > 0 {
		cfg.Filter.ExcludeDirs = excludeDirs
	}
	if minSize > 0 {
		cfg.Filter.MinSize = minSize
	}
	if maxSize > 0 {
		cfg.Filter.MaxSize = maxSize
	}
	if maxDepth > 0 {
		cfg.Filter.MaxDepth = maxDepth
	}
	if hidden {
		cfg.Filter.IncludeHidden = true
	}
	if policy != "" {
		cfg.Policy = types.DuplicatePolicy(policy)
	}
	if extract {
		cfg.Options.ExtractArchives = true
	}
	if archiveOrig {
		cfg.Options.ArchiveOriginals = true
	}
	if archiveDir != "" {
		cfg.Options.ArchiveDir = archiveDir
	}
	if keepEmpty {
		cfg.Options.RemoveEmpty = false
	}
	if dryRun {
		cfg.Options.DryRun = true
	}
	if hashVerify {
		cfg.Options.HashVerify = true
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if logJSON {
		cfg.LogJSON = true
	}

	return cfg, nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	scan, err := eng.Preview(cfg.Root, cfg.Filter)
	if err != nil {
		return err
	}

	fmt.Printf("Files to flatten:     %d\n", scan.FileCount)
	fmt.Printf("Total size:           %.2f MB\n", float64(scan.TotalBytes)/1024/1024)
	fmt.Printf("Subfolders:           %d\n", scan.SubfolderCount)
	fmt.Printf("Name collisions:      %d (estimated)\n", scan.EstimatedDuplicates)
	fmt.Printf("Zip archives:         %d\n", scan.ArchivesFound)
	return nil
}

func runFlatten(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	// Ctrl-C cancels between files, leaving the tree in a consistent state.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = eng.Execute(ctx, cfg.Root, cfg.Filter, cfg.Policy, cfg.Options)
	return err
}

func runUndo(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.Undo()
	if err != nil {
		return err
	}

	fmt.Printf("Restored: %d\n", result.Restored)
	if result.Partial() {
		fmt.Printf("Failed:   %d\n", result.Failed)
		for _, msg := range result.Errors {
			fmt.Println("  " + msg)
		}
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	rep := eng.LastReport()
	if rep == nil {
		return fmt.Errorf("no completed run in this session; run 'folderflatten run' first")
	}

	if err := report.Save(reportPath, rep); err != nil {
		return err
	}
	fmt.Println("Report written to " + reportPath)
	return nil
}
