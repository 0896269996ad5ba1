// Package server is the HTTP presentation adapter: it lists tools, collects
// parameter values as JSON and runs them against per-session workspaces.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Aquaveo/xmstool-runner/mesh"
	"github.com/Aquaveo/xmstool-runner/tool"
)

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Registry   *tool.Registry
	Dispatcher *tool.Dispatcher
	// NewWorkspace creates the project of a new session. Defaults to mesh.NewProject.
	NewWorkspace func() *mesh.Project
	// NewID generates session ids. Defaults to uuid.NewString.
	NewID      func() string
	CORSOrigin string
	MaxBody    int64
	Logger     *slog.Logger
}

// Server is the xmstool HTTP API server.
type Server struct {
	registry     *tool.Registry
	dispatcher   *tool.Dispatcher
	newWorkspace func() *mesh.Project
	newID        func() string
	corsOrigin   string
	maxBody      int64
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// session owns one workspace. busy admits a single invocation at a time.
type session struct {
	id      string
	project *mesh.Project
	busy    sync.Mutex
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = tool.NewRegistry()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = tool.NewDispatcher(tool.DispatcherConfig{Logger: logger})
	}
	newWorkspace := cfg.NewWorkspace
	if newWorkspace == nil {
		newWorkspace = mesh.NewProject
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	return &Server{
		registry:     registry,
		dispatcher:   dispatcher,
		newWorkspace: newWorkspace,
		newID:        newID,
		corsOrigin:   corsOrigin,
		maxBody:      maxBody,
		logger:       logger,
		sessions:     make(map[string]*session),
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(s.maxBodyMiddleware)
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API routes onto an existing router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/tools", s.handleListTools)
		r.Get("/tools/{id}", s.handleGetTool)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sid}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/tools/{id}/run", s.handleRunTool)
		})
	})
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	}
	if len(details) > 0 {
		body.Error.Details = details
	}
	writeJSON(w, status, body)
}
