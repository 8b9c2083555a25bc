package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-rooms/internal/obslog"
)

type Server struct {
	hub    *Hub
	server *http.Server
}

func NewServer(addr string, hub *Hub) *Server {
	return &Server{
		hub: hub,
		server: &http.Server{
			Addr:              addr,
			Handler:           hub.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	obslog.L().Info("http_listen", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes every WebSocket, then drains in-flight HTTP requests.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}
