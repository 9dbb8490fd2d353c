// Package server provides the local HTTP control surface
// cmd/kbinterposectl talks to, a JSON control API fronting internal/engine.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/keyfence/keyfence/internal/applog"
	"github.com/keyfence/keyfence/internal/engine"
)

var log = applog.For("server")

// Server serves the engine's operator control surface on localhost.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	eng        *engine.Engine
}

// New creates a control server fronting eng.
func New(eng *engine.Engine) *Server {
	return &Server{eng: eng}
}

// Start binds a random localhost port and begins serving. Returns the
// base URL cmd/kbinterposectl should talk to.
func (s *Server) Start(addr string) (string, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/detect", s.handleDetect)
	mux.HandleFunc("/sessions/start", s.handleStartSession)
	mux.HandleFunc("/sessions/stop", s.handleStopSession)
	mux.HandleFunc("/sessions/status", s.handleSessionStatus)
	mux.HandleFunc("/sessions/log", s.handleSessionLog)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("serve error", "err", err)
		}
	}()

	url := fmt.Sprintf("http://%s", ln.Addr().String())
	log.Info("control surface listening", "url", url)
	return url, nil
}

// Stop shuts the HTTP server down.
func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}
}

// URL returns the server's bound URL, or empty string if not started.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return fmt.Sprintf("http://%s", s.listener.Addr().String())
}
