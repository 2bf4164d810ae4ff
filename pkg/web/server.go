// Package web serves the voice agent over HTTP and WebSocket.
package web

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-barbie/pkg/conversation"
	"github.com/teslashibe/go-barbie/pkg/metrics"
	"github.com/teslashibe/go-barbie/pkg/relay"
	"github.com/teslashibe/go-barbie/pkg/session"
)

// Config holds server settings.
type Config struct {
	Version     string
	StaticDir   string
	BodyLimitMB int
	CORSOrigins string

	// Debug enables per-request access logging.
	Debug bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Server is the HTTP and WebSocket front end.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	agent *conversation.Agent
	relay *relay.Relay
	store *session.Store

	// ctx outlives individual requests and is cancelled by Shutdown so open
	// relays stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer wires routes for agent, relay and store.
func NewServer(agent *conversation.Agent, rel *relay.Relay, store *session.Store, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BodyLimitMB <= 0 {
		cfg.BodyLimitMB = 25
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: cfg,
		logger: cfg.Logger.With("component", "web"),
		agent:  agent,
		relay:  rel,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-barbie",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimitMB * 1024 * 1024,
		// Session ids outlive the request as store keys and relay labels.
		Immutable: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if cfg.Debug {
		app.Use(logger.New())
	}

	// Chat routes
	agentGroup := app.Group("/agent")
	agentGroup.Post("/chat/:session_id", s.handleChatAudio)
	agentGroup.Post("/chat_text/:session_id", s.handleChatText)
	agentGroup.Delete("/chat/:session_id", s.handleResetSession)

	// Health and metrics
	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/chat/:session_id", websocket.New(s.handleChatWS))
	app.Get("/ws/audio_stream/:session_id", websocket.New(s.handleAudioStreamWS))

	// Browser client
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		app.Static("/static", cfg.StaticDir)
		index := filepath.Join(cfg.StaticDir, "index.html")
		app.Get("/", func(c *fiber.Ctx) error {
			return c.SendFile(index)
		})
	} else if cfg.StaticDir != "" {
		s.logger.Warn("static directory not found, browser client disabled", "dir", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr, "mode", s.agent.Mode())
	return s.app.Listen(addr)
}

// Listener serves on an existing listener and blocks until the server stops.
func (s *Server) Listener(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String(), "mode", s.agent.Mode())
	return s.app.Listener(ln)
}

// Shutdown stops open relays and gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}
