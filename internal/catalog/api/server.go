// Package api serves the catalog over HTTP.
//
// The API reads and mutates records through the record store only. It never
// touches the mirror: the change watcher picks up the rewritten CSV file and
// rebuilds the affected table, so the mirror is eventually consistent with
// every successful write.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kiplm/kiplm/internal/catalog/events"
	"github.com/kiplm/kiplm/internal/catalog/store"
	"github.com/kiplm/kiplm/internal/httpx"
)

// DefaultPrefix is the path the catalog routes are mounted under.
const DefaultPrefix = "/monkey-api"

// Config holds server configuration.
type Config struct {
	// Prefix for the catalog routes (default: /monkey-api)
	Prefix string

	// FrontendDir holds injected_code.js and injected_style.css; empty
	// disables the /injected_code.js route
	FrontendDir string

	// HandleCORS enables permissive CORS headers; the injected client runs
	// on third-party pages
	HandleCORS bool

	// Events, if set, receives part events and serves /events
	Events *events.Hub

	// Logger for request logs (default: no-op)
	Logger *zap.Logger
}

// Server routes catalog requests to the record store.
type Server struct {
	Router *chi.Mux

	store  *store.Store
	config Config
	logger *zap.Logger
}

// New creates a server with all routes mounted.
func New(st *store.Store, cfg Config) (*Server, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	cfg.Prefix = "/" + strings.Trim(cfg.Prefix, "/")

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		Router: chi.NewRouter(),
		store:  st,
		config: cfg,
		logger: logger.Named("api"),
	}
	s.MountHandlers()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Prefix returns the path the catalog routes are mounted under.
func (s *Server) Prefix() string {
	return s.config.Prefix
}

func (s *Server) MountHandlers() {
	s.Router.Use(httpx.RequestLogger(s.logger))
	s.Router.Use(httpx.PanicHandler)
	if s.config.HandleCORS {
		s.Router.Use(s.HandleCORS)
	}

	s.Router.Get("/health", httpx.WrapHttpRsp(s.getHealth))
	s.Router.Route(s.config.Prefix, s.mountCatalogHandlers)
}

func (s *Server) mountCatalogHandlers(r chi.Router) {
	for _, handler := range s.catalogHandlers() {
		r.Method(handler.Method, handler.Path, httpx.WrapHttpRsp(handler.Handler))
	}
	if s.config.Events != nil {
		r.Handle("/events", s.config.Events)
	}
}

func (s *Server) catalogHandlers() []httpx.ResponseHandlerParam {
	return []httpx.ResponseHandlerParam{
		{Method: http.MethodGet, Path: "/parts", Handler: s.getParts},
		{Method: http.MethodGet, Path: "/tables", Handler: s.getTables},
		{Method: http.MethodGet, Path: "/part/{ipn}", Handler: s.getPart},
		{Method: http.MethodGet, Path: "/part-by-mpn/{mpn}", Handler: s.getPartByMPN},
		{Method: http.MethodPost, Path: "/part/{ipn}", Handler: s.postPart},
		{Method: http.MethodPut, Path: "/part/{ipn}", Handler: s.putPart},
		{Method: http.MethodGet, Path: "/injected_code.js", Handler: s.getInjectedCode},
	}
}

func (s *Server) HandleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposedHeaders:   []string{httpx.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
