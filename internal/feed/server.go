// Package feed serves the live station feed for remote operator screens:
// a health probe, the latest finished run and a websocket stream of
// progress messages.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/results"
)

const (
	readHeaderTimeout       = 5 * time.Second
	gracefulShutdownTimeout = 10 * time.Second
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("feed already started")

// Server is a progress observer and run sink that serves the feed over HTTP.
type Server struct {
	log     logrus.FieldLogger
	station string
	hub     *hub

	mu     sync.RWMutex
	latest *results.RunView
	server *http.Server
}

var _ devicetest.Observer = (*Server)(nil)

// NewServer creates a feed for station.
func NewServer(station string, log logrus.FieldLogger) *Server {
	l := log.WithField("component", "feed")

	return &Server{
		log:     l,
		station: station,
		hub:     newHub(l),
	}
}

// Handler returns the feed routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/runs/latest", s.handleLatestRun)
	r.Get("/ws", s.handleWebSocket)

	return r
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrAlreadyStarted
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	srv := s.server

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Feed server stopped")
		}
	}()

	s.log.WithField("addr", listener.Addr().String()).Info("Feed listening")

	return nil
}

// Stop closes every websocket client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.hub.closeAll()

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down feed: %w", err)
	}

	return nil
}

// OnMessage implements devicetest.Observer.
func (s *Server) OnMessage(msg devicetest.Message) error {
	return s.hub.broadcast(EventProgress, results.NewMessageView(s.station, msg))
}

// Name implements station.Sink.
func (s *Server) Name() string { return "feed" }

// PublishRun implements station.Sink.
func (s *Server) PublishRun(_ context.Context, run *results.Run) error {
	view := results.NewRunView(run)

	s.mu.Lock()
	s.latest = &view
	s.mu.Unlock()

	return s.hub.broadcast(EventRun, view)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"station": s.station,
		"clients": s.hub.clientCount(),
	})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run finished yet"})
		return
	}

	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	s.hub.register(c)

	go c.writePump()
	go c.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
