// Package server exposes the forecast, anomaly, ingestion and dashboard
// endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jgoulah/homeenergy/internal/logging"
	"github.com/jgoulah/homeenergy/internal/pipeline"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// Store is the reading store behind the API
type Store interface {
	pipeline.DataSource
	InsertReadings(ctx context.Context, readings []models.Reading) (int, error)
	Ping(ctx context.Context) error
}

// Options tune the server
type Options struct {
	DefaultDays    int           // forecast horizon when ?days is absent
	RequestTimeout time.Duration // per-request deadline, zero for none
	MaxUploadBytes int64
}

// Server routes API requests to the pipeline and the store
type Server struct {
	service *pipeline.Service
	store   Store
	opts    Options
	log     *slog.Logger
	Router  *mux.Router
}

// New creates a server and registers its routes
func New(service *pipeline.Service, store Store, opts Options) *Server {
	if opts.DefaultDays <= 0 {
		opts.DefaultDays = 7
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	s := &Server{
		service: service,
		store:   store,
		opts:    opts,
		log:     logging.WithComponent("server"),
		Router:  mux.NewRouter(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	r := s.Router
	r.Use(s.loggingMiddleware)
	if s.opts.RequestTimeout > 0 {
		r.Use(s.timeoutMiddleware)
	}

	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/forecast", s.forecastHandler).Methods("GET")
	api.HandleFunc("/anomalies", s.anomaliesHandler).Methods("GET", "POST")
	api.HandleFunc("/readings", s.uploadReadingsHandler).Methods("POST")
	api.HandleFunc("/households/{id}/readings", s.householdReadingsHandler).Methods("GET")
	api.HandleFunc("/households/{id}/summary", s.householdSummaryHandler).Methods("GET")
	api.HandleFunc("/appliances/summary", s.applianceSummaryHandler).Methods("GET")
}

// ServeHTTP lets the server be used as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Handler:      s.Router,
		Addr:         addr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.log.Info("Server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
