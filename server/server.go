// Package server assembles the HTTP routes and the realtime gateway into a
// single process handle.
package server

import (
	"context"
	"errors"
	"hedgedoc-server/config"
	"hedgedoc-server/core"
	"hedgedoc-server/handlers/api/documents"
	roomsapi "hedgedoc-server/handlers/api/rooms"
	"hedgedoc-server/handlers/websocket"
	"hedgedoc-server/rooms"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

var ErrAlreadyStarted = errors.New("server already started")

type Server struct {
	cfg      config.Config
	store    core.DocumentStore
	activity core.RoomActivityStore
	registry *rooms.Registry
	gateway  *websocket.Gateway
	io       *socketio.Server
	handler  http.Handler

	mu       sync.Mutex
	started  bool
	srv      *http.Server
	listener net.Listener
}

func New(cfg config.Config, store core.DocumentStore) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: rooms.NewRegistry(),
	}
	if activity, ok := store.(core.RoomActivityStore); ok {
		s.activity = activity
	}

	s.gateway = websocket.NewGateway(s.registry)
	opts := []websocket.RouterOption{websocket.WithWriteTimeout(cfg.WriteTimeout)}
	if s.activity != nil {
		opts = append(opts, websocket.WithRoomActivity(s.activity))
	}
	s.gateway.SetHandler(websocket.NewRouter(s.registry, s.gateway, store, opts...))
	s.io = websocket.SetupSocketIO(s.gateway, cfg.AllowedOrigins)
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowOriginFunc:  allowLocalhost(s.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/api/files", documents.Routes(s.store))
	r.Get("/api/rooms", roomsapi.HandleList(s.registry, s.activity))
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/socket.io/", s.io.ServeHandler(nil))
	return r
}

// allowLocalhost accepts the configured origins plus any loopback origin.
func allowLocalhost(allowed []string) func(*http.Request, string) bool {
	return func(r *http.Request, origin string) bool {
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		switch parsed.Scheme {
		case "http", "https":
			switch parsed.Hostname() {
			case "localhost", "127.0.0.1", "::1":
				return true
			}
		}
		return false
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":      "ok",
		"connections": s.gateway.ConnectionCount(),
		"rooms":       s.registry.RoomCount(),
	})
}

// Handler exposes the routes without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background. A server
// can only be started once.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.started = true
	s.listener = listener
	s.srv = &http.Server{Handler: s.handler}

	logrus.WithField("addr", listener.Addr().String()).Info("starting server")
	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.ListenAddr
}

// Shutdown closes every realtime connection and then drains HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.srv
	s.mu.Unlock()

	s.io.Close(nil)
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}
