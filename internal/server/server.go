// Package server provides the HTTP REST API over the harvested job store.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/job-harvester/internal/config"
	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/pipeline"
	"github.com/jonathan/job-harvester/internal/server/middleware"
)

// Store is the slice of the job store the read endpoints query.
type Store interface {
	ListJobs(ctx context.Context, filters db.JobFilters) ([]db.JobRecord, error)
	GetJobBySourceID(ctx context.Context, source, sourceID string) (*db.JobRecord, error)
	ListDetectionsByJob(ctx context.Context, jobID string) ([]db.Detection, error)
	CountJobs(ctx context.Context, source string) (*db.JobCounts, error)
	SkillCounts(ctx context.Context, source string, limit int) ([]db.SkillCount, error)
	LatestStatsSnapshot(ctx context.Context, source string) (*db.StatsSnapshot, error)
	ListRunMarkers(ctx context.Context, source string) ([]db.RunMarker, error)
}

// PipelineRunner executes one pipeline run on behalf of the run endpoint.
type PipelineRunner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Report, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	store       Store
	runner      PipelineRunner
	source      string
	jwtService  *JWTService
	authHandler *AuthHandler
	closer      func()
}

// Config holds server configuration
type Config struct {
	Port int
	// Source is the default source name for query endpoints.
	Source string
	// Runner handles POST /pipeline/run; nil disables the endpoint.
	Runner PipelineRunner
}

// New wires the server against an already-open Store so the caller's
// connection pool is shared rather than opened twice. closer, if non-nil,
// runs after shutdown.
func New(cfg Config, store Store, closer func()) (*Server, error) {
	s := &Server{
		store:  store,
		runner: cfg.Runner,
		source: cfg.Source,
		closer: closer,
	}

	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	s.jwtService = NewJWTService(jwtConfig)
	s.authHandler = NewAuthHandler(passwordConfig, s.jwtService)

	authRequired := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/login", s.authHandler.Login)

	// Job record endpoints
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{source_id}", s.handleGetJob)
	mux.HandleFunc("GET /jobs/{source_id}/detections", s.handleListJobDetections)

	// Statistics endpoints
	mux.HandleFunc("GET /stats/counts", s.handleStatsCounts)
	mux.HandleFunc("GET /stats/skills", s.handleStatsSkills)
	mux.HandleFunc("GET /stats/latest", s.handleStatsLatest)

	// Pipeline endpoints
	mux.HandleFunc("GET /pipeline/markers", s.handleListMarkers)
	mux.Handle("POST /pipeline/run", authRequired(http.HandlerFunc(s.handleRunPipeline)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for pipeline runs
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.closer != nil {
		s.closer()
	}
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
