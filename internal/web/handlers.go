package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/config"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/engine"
	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

type APIErrorResponse struct {
	Message string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIErrorResponse{Message: message})
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeValidationError(w http.ResponseWriter, field, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(FieldError{
		Field:   field,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status string) {
	writeJSON(w, map[string]string{"status": status})
}

// writeEngineError maps config and engine sentinel errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var validationErr *config.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeValidationError(w, validationErr.Field, validationErr.Message)
	case errors.Is(err, engine.ErrRunInProgress):
		writeAPIError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrUndoUnavailable):
		writeAPIError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNoRecords):
		writeAPIError(w, http.StatusNotFound, err.Error())
	default:
		writeAPIError(w, http.StatusInternalServerError, err.Error())
	}
}

type BrowseResponse struct {
	Path    string     `json:"path"`
	Entries []DirEntry `json:"entries"`
}

type DirEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = homeDir
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeAPIError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, os.ErrPermission) {
			writeAPIError(w, http.StatusForbidden, err.Error())
			return
		}
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var dirEntries []DirEntry
	for _, entry := range entries {
		if entry.Name()[0] == '.' {
			continue
		}
		dirEntries = append(dirEntries, DirEntry{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		})
	}

	writeJSON(w, BrowseResponse{Path: path, Entries: dirEntries})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, config.DefaultConfig())
}

// handleValidateConfig checks a form configuration without running it, so
// the UI can flag bad input before the user hits Flatten.
func (s *Server) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := cfg.Validate(); err != nil {
		writeEngineError(w, err)
		return
	}

	writeStatus(w, "ok")
}

// RunRequest carries everything one flatten session needs. The log and
// journal locations are fixed at server startup and ignored here.
type RunRequest struct {
	Root    string                `json:"root"`
	Filter  types.ScanFilter      `json:"filter"`
	Policy  types.DuplicatePolicy `json:"policy"`
	Options types.FlattenOptions  `json:"options"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	scan, err := s.engine.Preview(req.Root, req.Filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, scan)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	check := config.Config{
		Root:    req.Root,
		Filter:  req.Filter,
		Policy:  req.Policy,
		Options: req.Options,
	}
	if err := check.Validate(); err != nil {
		writeEngineError(w, err)
		return
	}

	s.runMu.Lock()
	if s.cancel != nil {
		s.runMu.Unlock()
		writeAPIError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.runMu.Unlock()

	writeStatus(w, "started")

	go func() {
		defer func() {
			s.runMu.Lock()
			s.cancel = nil
			s.runMu.Unlock()
			cancel()
		}()
		defer func() {
			if rec := recover(); rec != nil {
				s.broadcastProgress(engine.ProgressUpdate{
					Type:  "error",
					Error: fmt.Sprintf("internal error: %v", rec),
				})
			}
		}()

		_, err := s.engine.Execute(ctx, req.Root, req.Filter, check.Policy, check.Options)
		if err != nil {
			s.broadcastProgress(engine.ProgressUpdate{Type: "error", Error: err.Error()})
		}

		s.appendRunHistory(err)
	}()
}

func (s *Server) appendRunHistory(runErr error) {
	report := s.engine.LastReport()
	if report == nil {
		return
	}

	status := types.RunStatusSuccess
	if runErr != nil {
		status = types.RunStatusFailed
	}

	entry := types.RunHistoryEntry{
		ID:        fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), filepath.Base(report.Root)),
		Report:    *report,
		Status:    status,
		CreatedAt: time.Now(),
	}
	s.userdata.AddRunHistoryEntry(entry)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.runMu.Lock()
	cancel := s.cancel
	s.runMu.Unlock()

	if cancel == nil {
		writeAPIError(w, http.StatusConflict, "no run in progress")
		return
	}

	cancel()
	writeStatus(w, "cancelling")
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Undo()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.engine.LastReport()
	if report == nil {
		writeAPIError(w, http.StatusNotFound, "no completed run")
		return
	}

	writeJSON(w, report)
}

func (s *Server) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.hub.broadcast <- data
}

func (s *Server) broadcastProgress(update engine.ProgressUpdate) {
	s.broadcastJSON(update)
}

// Preset-related handlers

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.presets.ListPresets()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, presets)
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string        `json:"name"`
		Description string        `json:"description"`
		Config      config.Config `json:"config"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Name == "" {
		writeAPIError(w, http.StatusBadRequest, "preset name is required")
		return
	}

	preset := config.ConfigToPreset(&req.Config, req.Name, req.Description)
	if err := s.presets.SavePreset(preset); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeStatus(w, "ok")
}

func (s *Server) handleLoadPreset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeAPIError(w, http.StatusBadRequest, "preset name is required")
		return
	}

	preset, err := s.presets.LoadPreset(name)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, config.PresetToConfig(preset))
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeAPIError(w, http.StatusBadRequest, "preset name is required")
		return
	}

	if err := s.presets.DeletePreset(name); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeStatus(w, "ok")
}

// UserData-related handlers (settings, path history, run history)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.userdata.LoadSettings()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, settings)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings types.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.userdata.SaveSettings(&settings); err != nil {
		var validationErr *config.ValidationError
		if errors.As(err, &validationErr) {
			writeValidationError(w, validationErr.Field, validationErr.Message)
			return
		}

		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeStatus(w, "ok")
}

func (s *Server) handleGetPathHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.userdata.LoadPathHistory()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, history)
}

func (s *Server) handleSavePathHistory(w http.ResponseWriter, r *http.Request) {
	var history types.PathHistory
	if err := json.NewDecoder(r.Body).Decode(&history); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.userdata.SavePathHistory(&history); err != nil {
		var validationErr *config.ValidationError
		if errors.As(err, &validationErr) {
			writeValidationError(w, validationErr.Field, validationErr.Message)
			return
		}

		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeStatus(w, "ok")
}

func (s *Server) handleGetRunHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil {
			limit = parsedLimit
			if limit > 100 {
				limit = 100
			} else if limit < 1 {
				limit = 20
			}
		}
	}

	history, err := s.userdata.LoadRunHistory()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Entries are already sorted newest first.
	if len(history.Entries) > limit {
		history.Entries = history.Entries[:limit]
	}

	writeJSON(w, history)
}

// Version handler

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}
