// Package api serves the HTTP job API used to start syncs, check on them,
// and manage saved configs.
package api

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	goSync "sync"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/session"
	"github.com/sidkik/sftpsync/pkg/tasks"
	"github.com/sidkik/sftpsync/pkg/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize bounds request bodies. Configs are small.
const maxBodySize = 1 << 20

// Opener opens a session to the remote described by a connection.
type Opener func(config.Connection) (session.Session, error)

// Server handles API requests. Syncs started through the API run in the
// background, one goroutine per task.
type Server struct {
	tasks   tasks.Store
	configs *config.Store
	open    Opener
	origins []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     goSync.WaitGroup
}

// New creates a Server. Requests from browsers are only allowed from
// `allowedOrigins`. "*" allows any origin.
func New(taskStore tasks.Store, configStore *config.Store, open Opener, allowedOrigins []string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		tasks:   taskStore,
		configs: configStore,
		open:    open,
		origins: allowedOrigins,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("", s.root).Methods(http.MethodGet)
	api.HandleFunc("/sync/start", s.startSync).Methods(http.MethodPost)
	api.HandleFunc("/sync/status/{id}", s.syncStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync/tasks", s.listTasks).Methods(http.MethodGet)
	api.HandleFunc("/config/save", s.saveConfig).Methods(http.MethodPost)
	api.HandleFunc("/config/load/{name}", s.loadConfig).Methods(http.MethodGet)
	api.HandleFunc("/config/list", s.listConfigs).Methods(http.MethodGet)
	api.HandleFunc("/config/delete/{name}", s.deleteConfig).Methods(http.MethodDelete)
	api.HandleFunc("/test-connection", s.testConnection).Methods(http.MethodPost)
	router.Use(logRequests)

	// CORS wraps the router so that preflight requests are answered even
	// though no route accepts OPTIONS.
	return s.cors(router)
}

// Shutdown cancels running syncs, and waits for them to stop.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until all background syncs have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

type message struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

type startResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "SFTP Sync API",
		"version": version.Version,
		"status":  "running",
	})
}

func (s *Server) startSync(w http.ResponseWriter, r *http.Request) {
	cfg, ok := readConfig(w, r)
	if !ok {
		return
	}

	task, err := s.tasks.Create(cfg.LocalDir, cfg.RemoteDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.WithContext(err, "create task"))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTask(task.ID, cfg)
	}()

	writeJSON(w, http.StatusAccepted, startResponse{
		TaskID:  task.ID,
		Status:  "started",
		Message: "Sync task started successfully",
	})
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(mux.Vars(r)["id"])
	if err != nil {
		if err == tasks.ErrNotFound {
			writeError(w, http.StatusNotFound, errors.NewFriendlyError("Task not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) saveConfig(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.NewFriendlyError("The name query parameter is required."))
		return
	}

	cfg, ok := readConfig(w, r)
	if !ok {
		return
	}

	saved, err := s.configs.Save(name, cfg)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	configs, err := s.configs.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var path string
	for _, c := range configs {
		if c.Name == saved {
			path = c.Path
		}
	}
	writeJSON(w, http.StatusOK, message{
		Status:  "success",
		Message: fmt.Sprintf("Configuration '%s' saved successfully", saved),
		Path:    path,
	})
}

func (s *Server) loadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.Load(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) listConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.configs.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if configs == nil {
		configs = []config.SavedConfig{}
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) deleteConfig(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.configs.Delete(name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, message{
		Status:  "success",
		Message: fmt.Sprintf("Configuration '%s' deleted successfully", name),
	})
}

// testConnection always responds with 200. Whether the connection worked is
// reported in the body.
func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	cfg, ok := readConfig(w, r)
	if !ok {
		return
	}

	result := message{Status: "success", Message: "Connection successful"}
	if err := s.testSession(cfg.Connection); err != nil {
		log.WithError(err).WithField("host", cfg.Host).Info("Connection test failed")
		result = message{Status: "failed", Message: errors.GetPrintableMessage(err)}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) testSession(conn config.Connection) error {
	sess, err := s.open(conn)
	if err != nil {
		return err
	}
	return sess.Close()
}

// readConfig decodes a config from the request body. YAML and JSON bodies are
// both accepted. It writes an error response and returns false if the body
// can't be used.
func readConfig(w http.ResponseWriter, r *http.Request) (config.Config, bool) {
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.WithContext(err, "read body"))
		return config.Config{}, false
	}

	cfg, err := config.ParseBytes("request body", body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return config.Config{}, false
	}

	if err := cfg.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return config.Config{}, false
	}
	return cfg, true
}

func statusFor(err error) int {
	var notSaved config.NotSavedError
	if errors.As(err, &notSaved) {
		return http.StatusNotFound
	}

	var friendly errors.FriendlyError
	if errors.As(err, &friendly) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"detail": errors.GetPrintableMessage(err)})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) bool {
	for _, allowed := range s.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Debug("Handling request")
		next.ServeHTTP(w, r)
	})
}
