package server

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spoolworks/spool/engine"
	"github.com/spoolworks/spool/pkg/sse"
)

// Server is the HTTP ingest server. Transports push session lifecycle
// signals and raw chunks in; consumers read state snapshots and the SSE
// notification feed out.
type Server struct {
	config    Config
	eng       *engine.Engine
	broadcast *Broadcaster
	logger    *zap.Logger
	app       *fiber.App
}

// ErrorResponse is the JSON error body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new ingest server around an existing engine and
// broadcaster. The broadcaster must already be wired as the engine's sink.
func NewServer(config Config, eng *engine.Engine, broadcast *Broadcaster, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		eng:       eng,
		broadcast: broadcast,
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/sessions", s.handleStartSession)
	app.Get("/v1/sessions/current", s.handleGetSession)
	app.Post("/v1/sessions/current/events", s.handlePushChunk)
	app.Post("/v1/sessions/current/complete", s.handleComplete)
	app.Post("/v1/sessions/current/error", s.handleError)
	app.Get("/v1/notifications", s.handleNotifications)

	return s
}

// Run starts the ingest server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting ingest server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the ingest server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

type startSessionRequest struct {
	Hint string `json:"hint"`
}

// handleStartSession opens a new session.
func (s *Server) handleStartSession(c *fiber.Ctx) error {
	var req startSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "malformed request body"})
		}
	}

	if !s.eng.StartSession(req.Hint) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "engine not accepting events"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

// handlePushChunk submits one raw chunk payload. The body is forwarded to
// the engine as-is; classification and validation happen there.
func (s *Server) handlePushChunk(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "empty chunk payload"})
	}

	// Copy: fasthttp recycles the request buffer after the handler returns,
	// and the engine processes the payload asynchronously.
	payload := make([]byte, len(body))
	copy(payload, body)

	if !s.eng.PushChunk(payload) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "engine not accepting events"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

type completeRequest struct {
	Final string `json:"final"`
}

// handleComplete signals the end of the stream.
func (s *Server) handleComplete(c *fiber.Ctx) error {
	var req completeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "malformed request body"})
		}
	}

	if !s.eng.CompleteSession(req.Final) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "engine not accepting events"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

type errorRequest struct {
	Reason string `json:"reason"`
}

// handleError fails the in-flight session.
func (s *Server) handleError(c *fiber.Ctx) error {
	var req errorRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "malformed request body"})
		}
	}
	if req.Reason == "" {
		req.Reason = "transport error"
	}

	if !s.eng.FailSession(req.Reason) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "engine not accepting events"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

// handleGetSession returns the engine's current state snapshot.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	return c.JSON(s.eng.Snapshot())
}

// handleNotifications serves the SSE notification feed.
//
// io.Pipe is used instead of SetBodyStreamWriter: pw.Write blocks until
// fasthttp's chunked writer consumes and flushes the bytes, so each
// notification reaches the client immediately instead of pooling in an
// internal buffer.
func (s *Server) handleNotifications(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	id, frames := s.broadcast.Subscribe()

	pr, pw := io.Pipe()
	go s.streamNotifications(id, frames, pw)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// streamNotifications writes subscribed frames onto the pipe until the
// client disconnects or the subscription is closed.
func (s *Server) streamNotifications(id uint64, frames <-chan Frame, pw *io.PipeWriter) {
	defer s.broadcast.Unsubscribe(id)
	defer pw.Close()

	if err := sse.WriteComment(pw, "connected"); err != nil {
		return
	}

	for frame := range frames {
		if err := sse.WriteEvent(pw, frame.Event, frame.Data); err != nil {
			// Write fails when the client went away; the deferred
			// Unsubscribe drains and closes the channel.
			s.logger.Debug("feed subscriber disconnected",
				zap.Uint64("subscriber", id),
				zap.Error(err),
			)
			return
		}
	}
}
