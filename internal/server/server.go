// Package server exposes the job submission, status and extraction HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/job"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	maxRequestBytes   = 4 << 20
)

// ErrNATSDisconnected is reported by the NATS health check.
var ErrNATSDisconnected = errors.New("nats connection is not connected")

// Submitter accepts new jobs.
type Submitter interface {
	Submit(ctx context.Context, kind job.Kind, params job.Params) (string, error)
}

// StatusSource answers job status queries.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (job.Status, error)
}

// Checker reports the health of one dependency.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// NATSChecker reports whether a NATS connection is up.
type NATSChecker struct {
	Conn *nats.Conn
}

// CheckHealth implements Checker.
func (c NATSChecker) CheckHealth(_ context.Context) error {
	if c.Conn == nil || !c.Conn.IsConnected() {
		return ErrNATSDisconnected
	}

	return nil
}

// Dependencies are the collaborators the handlers call.
type Dependencies struct {
	Jobs      Submitter
	Statuses  StatusSource
	Extractor core.TextExtractor
	Checkers  map[string]Checker
}

// Server is the HTTP front end of the podcast service.
type Server struct {
	host   string
	port   int
	deps   Dependencies
	log    *logger.Logger
	router chi.Router
}

// New creates a server listening on host:port once Run is called.
func New(host string, port int, deps Dependencies, log *logger.Logger) *Server {
	srv := &Server{
		host:   host,
		port:   port,
		deps:   deps,
		log:    log,
		router: chi.NewRouter(),
	}
	srv.routes()

	return srv
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLog)
	s.router.Use(s.recovery)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "no route for "+r.URL.Path, nil)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path, nil)
	})

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/jobs", func(r chi.Router) {
		r.Post("/podcast", s.handleSubmit(job.KindPodcast))
		r.Post("/dialogue", s.handleSubmit(job.KindDialogue))
		r.Get("/{id}", s.handleStatus)
	})

	s.router.Get("/extract", s.handleExtract)
	s.router.Post("/extract/batch", s.handleExtractBatch)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(s.host, strconv.Itoa(s.port)),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		s.log.Info("HTTP server listening on %s", httpServer.Addr)
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	err = <-errChan
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}
