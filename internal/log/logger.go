// Package log writes the append-only session log. The log is a monitoring
// aid for the front ends, never authoritative state.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

type Logger struct {
	mu      sync.Mutex
	console io.Writer
	file    *os.File
	logJSON bool
	logText bool
}

func New(logFilePath string, logJSON, logText bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &Logger{
		console: os.Stdout,
		file:    file,
		logJSON: logJSON,
		logText: logText,
	}, nil
}

// Discard returns a logger that writes nowhere. Used by tests and by the
// engine when no log file is configured.
func Discard() *Logger {
	return &Logger{console: io.Discard}
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Source    string         `json:"source,omitempty"`
	Dest      string         `json:"dest,omitempty"`
	Kind      types.MoveKind `json:"kind,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// LogMove records one executed relocation.
func (l *Logger) LogMove(rec types.MoveRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writeEntry(LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Message:   fmt.Sprintf("%s: %s -> %s", rec.Kind, filepath.Base(rec.Source), rec.Dest),
		Source:    rec.Source,
		Dest:      rec.Dest,
		Kind:      rec.Kind,
	})
}

// LogSkip records a collision that resolved to skip.
func (l *Logger) LogSkip(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writeEntry(LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Message:   "skipped duplicate: " + filepath.Base(source),
		Source:    source,
	})
}

func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writeEntry(LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Message:   msg,
	})
}

func (l *Logger) Error(msg string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     "ERROR",
		Message:   msg,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	l.writeEntry(entry)
}

func (l *Logger) writeEntry(entry LogEntry) {
	if l.logJSON && l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(data)
		l.file.Write([]byte("\n"))
	}

	if l.logText && l.file != nil {
		line := fmt.Sprintf("[%s] %s %s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.Level,
			entry.Message,
		)
		if entry.Error != "" {
			line = fmt.Sprintf("[%s] %s %s - Error: %s\n",
				entry.Timestamp.Format("2006-01-02 15:04:05"),
				entry.Level,
				entry.Message,
				entry.Error,
			)
		}
		l.file.WriteString(line)
	}
}

// Summary prints the run outcome block to the console.
func (l *Logger) Summary(stats types.RunStats) {
	fmt.Fprintln(l.console, "\n=== FolderFlatten Summary ===")
	fmt.Fprintf(l.console, "Total files:      %d\n", stats.TotalFiles)
	fmt.Fprintf(l.console, "Moved:            %d\n", stats.Moved)
	fmt.Fprintf(l.console, "Renamed:          %d\n", stats.Renamed)
	fmt.Fprintf(l.console, "Overwritten:      %d\n", stats.Overwritten)
	fmt.Fprintf(l.console, "Skipped:          %d\n", stats.Skipped)
	fmt.Fprintf(l.console, "Errors:           %d\n", stats.Errors)
	fmt.Fprintf(l.console, "Folders removed:  %d\n", stats.FoldersRemoved)
	if stats.ArchivesFound > 0 {
		fmt.Fprintf(l.console, "Archives found:   %d\n", stats.ArchivesFound)
		fmt.Fprintf(l.console, "Files extracted:  %d\n", stats.ArchivesExtracted)
		fmt.Fprintf(l.console, "Archives moved:   %d\n", stats.ArchivesMoved)
	}
	fmt.Fprintf(l.console, "Bytes moved:      %.2f MB\n", float64(stats.BytesMoved)/1024/1024)
	fmt.Fprintf(l.console, "Duration:         %s\n", stats.Duration.Round(time.Second))
	if stats.Cancelled {
		fmt.Fprintln(l.console, "Run was cancelled before completion.")
	}
	if stats.UndoAvailable {
		fmt.Fprintln(l.console, "Undo is available for this session.")
	}
	fmt.Fprintln(l.console, "=============================")
}

// Progress writes the in-place console progress line.
func (l *Logger) Progress(current, total int, filename string) {
	fmt.Fprintf(l.console, "\r[%d/%d] %s", current, total, filename)
}
