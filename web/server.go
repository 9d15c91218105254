package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"coinduel/service"

	log "github.com/sirupsen/logrus"
)

// Server is the HTTP and WebSocket surface of the wagering core.
type Server struct {
	httpServer *http.Server

	userService service.UserService
	roomService service.RoomService
	gameService service.GameService
	hub         *Hub

	tokenSecret string
	defaultBet  int64
}

// Config holds the server's transport configuration
type Config struct {
	Addr        string
	TokenSecret string
	DefaultBet  int64
}

// NewServer wires the request surface onto the domain services.
func NewServer(cfg Config, userService service.UserService, roomService service.RoomService, gameService service.GameService, hub *Hub) *Server {
	s := &Server{
		userService: userService,
		roomService: roomService,
		gameService: gameService,
		hub:         hub,
		tokenSecret: cfg.TokenSecret,
		defaultBet:  cfg.DefaultBet,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/me", s.authMiddleware(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /api/me/ledger", s.authMiddleware(http.HandlerFunc(s.handleMyLedger)))
	mux.Handle("GET /api/rooms", s.authMiddleware(http.HandlerFunc(s.handleListRooms)))
	mux.Handle("POST /api/rooms", s.authMiddleware(http.HandlerFunc(s.handleCreateRoom)))
	mux.Handle("GET /api/rooms/{id}", s.authMiddleware(http.HandlerFunc(s.handleGetRoom)))
	mux.Handle("POST /api/rooms/{id}/join", s.authMiddleware(http.HandlerFunc(s.handleJoinRoom)))
	mux.Handle("POST /api/rooms/{id}/confirm", s.authMiddleware(http.HandlerFunc(s.handleConfirmReady)))
	mux.Handle("GET /ws", s.authMiddleware(http.HandlerFunc(hub.HandleWS)))

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           requestLogger(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("Request handled")
	})
}
