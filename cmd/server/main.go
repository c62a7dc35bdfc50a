package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/curatelab/shelfsort/catalog"
	"github.com/curatelab/shelfsort/engine"
	"github.com/curatelab/shelfsort/internal/logger"
	"github.com/curatelab/shelfsort/settings"
	"github.com/curatelab/shelfsort/tenantrun"
)

type Server struct {
	db      *sql.DB
	manager *tenantrun.Manager
	router  *chi.Mux
}

// Config is the server's environment-driven configuration.
type Config struct {
	DatabaseURL    string
	Port           string
	CatalogAdapter string
	CatalogBaseURL string
	CatalogToken   string
}

func loadConfig() Config {
	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Port:           os.Getenv("PORT"),
		CatalogAdapter: strings.ToLower(os.Getenv("CATALOG_ADAPTER")),
		CatalogBaseURL: os.Getenv("CATALOG_BASE_URL"),
		CatalogToken:   os.Getenv("CATALOG_TOKEN"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.CatalogAdapter == "" {
		cfg.CatalogAdapter = "http"
	}
	return cfg
}

func NewServer(cfg Config) (*Server, error) {
	api, err := buildCatalogAPI(cfg)
	if err != nil {
		return nil, err
	}

	// Without a database URL the server runs on the in-memory store, which
	// is enough for local development against the mock catalog.
	var db *sql.DB
	var store settings.Store
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store = settings.NewPostgresStore(db)
	} else {
		logger.Logger.Warn("DATABASE_URL not set, using in-memory settings store")
		store = settings.NewInMemoryStore()
	}

	cache := settings.NewInMemoryCache(settings.DefaultCacheConfig())
	eng := engine.New(api, store, logger.Logger)
	manager := tenantrun.NewManager(store, cache, eng, logger.Logger)

	logger.Logger.Info("loading tenants")
	if err := manager.LoadAllTenants(); err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}

	s := &Server{
		db:      db,
		manager: manager,
	}
	s.setupRoutes()
	return s, nil
}

func buildCatalogAPI(cfg Config) (catalog.API, error) {
	switch cfg.CatalogAdapter {
	case "http":
		return catalog.NewRESTClient(catalog.RESTClientOptions{
			BaseURL: cfg.CatalogBaseURL,
			Token:   cfg.CatalogToken,
		})
	case "mock":
		return catalog.NewMockClient(catalog.MockClientOptions{}), nil
	}
	return nil, fmt.Errorf("unknown CATALOG_ADAPTER %q (use: http, mock)", cfg.CatalogAdapter)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	// Health check
	r.Get("/api/v1/health", s.handleHealth)

	// Tenant settings and run triggers
	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handleUpdateSettings)
			r.Delete("/", s.handleDeleteTenant)

			r.Post("/cohorts/{cohort}/run", s.handleRunCohort)
			r.Post("/reorder", s.handleRunReorder)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unhealthy",
				Error:  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// List tenants handler
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.manager.ListTenants()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
		return
	}
	if tenants == nil {
		tenants = []string{}
	}
	respondJSON(w, http.StatusOK, TenantsListResponse{Tenants: tenants})
}

// Get settings handler
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	rec, err := s.manager.Settings(tenantID)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get settings", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Update settings handler
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var rec settings.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	rec.TenantID = tenantID

	if err := s.manager.UpdateSettings(&rec); err != nil {
		if errors.Is(err, engine.ErrInvalidSettings) {
			respondError(w, http.StatusBadRequest, "invalid settings", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update settings", err)
		return
	}

	stored, err := s.manager.Settings(tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read back settings", err)
		return
	}
	respondJSON(w, http.StatusOK, stored)
}

// Delete tenant handler
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	if err := s.manager.DeleteTenant(tenantID); err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete tenant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run cohort handler
func (s *Server) handleRunCohort(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	kind, err := engine.ParseKind(chi.URLParam(r, "cohort"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown cohort", err)
		return
	}

	result, err := s.manager.RunCohort(r.Context(), tenantID, kind)
	if err != nil {
		respondError(w, runErrorStatus(err), "cohort run failed", err)
		return
	}

	// No-qualifying-items and partial failures are reported in the result,
	// not as transport errors.
	respondJSON(w, http.StatusOK, result)
}

// Run reorder handler
func (s *Server) handleRunReorder(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	result, err := s.manager.RunReorder(r.Context(), tenantID)
	if err != nil {
		respondError(w, runErrorStatus(err), "reorder run failed", err)
		return
	}

	// A timed-out job still reports 200: the order was accepted and the
	// platform finishes applying it on its own.
	respondJSON(w, http.StatusOK, result)
}

// runErrorStatus maps run errors to HTTP status codes: configuration
// problems are the caller's fault, missing tenants are 404, and anything
// else is an upstream catalog failure.
func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, settings.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidSettings), errors.Is(err, engine.ErrDisabledCohort):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	cfg := loadConfig()

	server, err := NewServer(cfg)
	if err != nil {
		logger.Logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout: 15 * time.Second,
		// Run triggers block while the reorder job is polled, so the write
		// timeout must outlast the poll budget.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Logger.Info("server starting", "port", cfg.Port, "adapter", cfg.CatalogAdapter)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Logger.Error("server shutdown error", "error", err)
	}

	logger.Logger.Info("server stopped")
}
