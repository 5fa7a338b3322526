// Package server runs the HTTP server.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pageza/nutriado/backend/config"
	"github.com/pageza/nutriado/backend/internal/router"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	http   *http.Server
	log    logrus.FieldLogger
}

// New creates a new server instance
func New(cfg *config.Config, deps router.Deps, log logrus.FieldLogger) *Server {
	r := router.SetupRouter(cfg, deps, log)

	return &Server{
		router: r,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.ServerHost, cfg.ServerPort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			// Upstream calls may take UpstreamTimeout; leave room to answer.
			WriteTimeout: cfg.UpstreamTimeout + 10*time.Second,
			IdleTimeout:  2 * time.Minute,
		},
		log: log,
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start starts the server and blocks until it stops. A graceful shutdown is
// not reported as an error.
func (s *Server) Start() error {
	s.log.WithField("addr", s.http.Addr).Info("Starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
