// Package web exposes the operator surface: calibration management, the
// session event log, live telemetry over websocket and the current
// display image.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/ubicomp-capstone/gazepatch/internal/store"
	"github.com/ubicomp-capstone/gazepatch/pkg/hub"
	"github.com/ubicomp-capstone/gazepatch/pkg/session"
)

// EventStore is the slice of the persistence layer the HTTP surface
// needs. *store.Store implements it.
type EventStore interface {
	Events(limit int) ([]store.Event, error)
	Flush()
	DeleteCalibration() error
}

// Server is the operator HTTP/websocket server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	session *session.Session
	events  EventStore

	// Hub for websocket telemetry broadcast
	stream *hub.Hub

	startedAt time.Time
}

// NewServer creates the server and wires its routes. stream is the hub
// the session publishes telemetry into.
func NewServer(port string, sess *session.Session, events EventStore, stream *hub.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:      port,
		logger:    logger.With("component", "web"),
		session:   sess,
		events:    events,
		stream:    stream,
		startedAt: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "gazepatch",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealthz)
	app.Get("/telemetry/latest", s.handleTelemetryLatest)
	app.Get("/display", s.handleDisplay)

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/calibration", s.handleGetCalibration)
	api.Post("/calibration", s.handleSolveCalibration)
	api.Delete("/calibration", s.handleDeleteCalibration)
	api.Get("/events", s.handleEvents)
	api.Post("/reset", s.handleReset)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stream", websocket.New(s.handleStreamWS))

	s.app = app
	return s
}

// Start runs the telemetry hub and listens until the server is shut
// down. ctx bounds the hub's lifetime.
func (s *Server) Start(ctx context.Context) error {
	go s.stream.Run(ctx)
	s.logger.Info("listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// handleStreamWS registers a telemetry stream client with the hub and
// blocks for the connection's lifetime.
func (s *Server) handleStreamWS(c *websocket.Conn) {
	client := hub.NewClient(s.stream, c)
	client.Run()
}
