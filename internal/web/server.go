// Package web serves the browser UI: a JSON API over the flattening engine
// plus a websocket channel for live progress.
package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/config"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/engine"
)

type Server struct {
	router  *mux.Router
	hub     *Hub
	version string

	engine   *engine.Engine
	presets  *config.PresetManager
	userdata *config.UserDataManager

	// runMu guards cancel; a non-nil cancel means a run is in flight.
	runMu  sync.Mutex
	cancel context.CancelFunc
}

func NewServer(cfg *config.Config) (*Server, error) {
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	pm, err := config.NewPresetManager()
	if err != nil {
		return nil, err
	}
	um, err := config.NewUserDataManager()
	if err != nil {
		return nil, err
	}
	return newServerWith(eng, pm, um), nil
}

func newServerWith(eng *engine.Engine, pm *config.PresetManager, um *config.UserDataManager) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		hub:      NewHub(),
		version:  "unknown",
		engine:   eng,
		presets:  pm,
		userdata: um,
	}

	go s.hub.Run()

	eng.SetProgressCallback(func(update engine.ProgressUpdate) {
		s.broadcastProgress(update)
	})

	s.setupRoutes()
	return s
}

func (s *Server) SetVersion(v string) {
	s.version = v
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/browse", s.handleBrowse).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleValidateConfig).Methods("POST")
	api.HandleFunc("/preview", s.handlePreview).Methods("POST")
	api.HandleFunc("/run", s.handleRun).Methods("POST")
	api.HandleFunc("/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/undo", s.handleUndo).Methods("POST")
	api.HandleFunc("/report", s.handleReport).Methods("GET")
	api.HandleFunc("/ws", s.handleWebSocket)

	// Preset routes
	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")
	api.HandleFunc("/presets", s.handleSavePreset).Methods("POST")
	api.HandleFunc("/presets/load", s.handleLoadPreset).Methods("GET")
	api.HandleFunc("/presets/delete", s.handleDeletePreset).Methods("DELETE")

	// UserData routes (settings, path history, run history)
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleSaveSettings).Methods("POST")
	api.HandleFunc("/path-history", s.handleGetPathHistory).Methods("GET")
	api.HandleFunc("/path-history", s.handleSavePathHistory).Methods("POST")
	api.HandleFunc("/history", s.handleGetRunHistory).Methods("GET")

	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir("web/static")))
}

func (s *Server) Start(addr string) error {
	fmt.Printf("Starting FolderFlatten Web UI at http://%s\n", addr)
	return http.ListenAndServe(addr, s.router)
}
