// Package api is the durable sink's HTTP surface: nodes post events and
// heartbeats here and the dashboard reads the log back.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/backend/domain"
)

// Store abstracts the persistence layer so memory and postgres are interchangeable.
type Store interface {
	CreateEvent(ctx context.Context, in domain.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	TouchDevice(ctx context.Context, id string, at time.Time) (domain.Device, error)
	ListDevices(ctx context.Context) ([]domain.Device, error)
}

// Streamer fans changes out to live subscribers.
type Streamer interface {
	PublishEvent(ctx context.Context, e domain.Event) error
	PublishDevice(ctx context.Context, d domain.Device) error
}

// Config wraps the knobs that impact runtime behavior.
type Config struct {
	Addr string
}

// Server exposes the Fiber application.
type Server struct {
	app    *fiber.App
	store  Store
	stream Streamer
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStreamer enables live fan-out.
func WithStreamer(st Streamer) Option {
	return func(s *Server) { s.stream = st }
}

// WithClock overrides the clock used for last_seen.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer wires handlers and middleware.
func NewServer(cfg Config, store Store, log *zap.Logger, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Format: "${time} | ${status} | ${latency} | ${method} ${path}\n"}))
	app.Use(cors.New())

	srv := &Server{app: app, store: store, cfg: cfg, log: log, now: time.Now}
	for _, o := range opts {
		o(srv)
	}
	srv.registerRoutes()
	return srv
}

// App returns the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts listening for HTTP traffic until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()

	s.log.Info("sink listening", zap.String("addr", s.cfg.Addr))
	return s.app.Listen(s.cfg.Addr)
}

// errorHandler renders every error as {"error": msg}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api")
	api.Post("/event", s.handleCreateEvent)
	api.Post("/heartbeat", s.handleHeartbeat)
	api.Get("/events", s.handleListEvents)
	api.Get("/events/export.xlsx", s.handleExportEvents)
	api.Get("/devices", s.handleListDevices)
}

func (s *Server) handleCreateEvent(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var body domain.EventBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	in, err := body.Input()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	evt, err := s.store.CreateEvent(ctx, in)
	if err != nil {
		s.log.Error("failed to store event", zap.String("device_id", in.DeviceID), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to log event")
	}
	dev, err := s.store.TouchDevice(ctx, in.DeviceID, s.now())
	if err != nil {
		s.log.Error("failed to touch device", zap.String("device_id", in.DeviceID), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to log event")
	}

	s.log.Info("event logged",
		zap.String("id", evt.ID),
		zap.String("device_id", evt.DeviceID),
		zap.String("label", evt.Label),
		zap.Time("timestamp", evt.Timestamp))

	if s.stream != nil {
		if err := s.stream.PublishDevice(ctx, dev); err != nil {
			s.log.Warn("stream publish failed", zap.Error(err))
		}
		if err := s.stream.PublishEvent(ctx, evt); err != nil {
			s.log.Warn("stream publish failed", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{"message": "Event logged"})
}

func (s *Server) handleHeartbeat(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var body domain.HeartbeatBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if body.DeviceID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "device_id is required")
	}

	dev, err := s.store.TouchDevice(ctx, body.DeviceID, s.now())
	if err != nil {
		s.log.Error("failed to update heartbeat", zap.String("device_id", body.DeviceID), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to update heartbeat")
	}
	s.log.Debug("heartbeat", zap.String("device_id", dev.ID))

	if s.stream != nil {
		if err := s.stream.PublishDevice(ctx, dev); err != nil {
			s.log.Warn("stream publish failed", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{"message": "Device heartbeat received"})
}

func (s *Server) handleListEvents(c *fiber.Ctx) error {
	items, err := s.store.ListEvents(c.UserContext())
	if err != nil {
		s.log.Error("failed to list events", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch events")
	}
	return c.JSON(items)
}

func (s *Server) handleListDevices(c *fiber.Ctx) error {
	items, err := s.store.ListDevices(c.UserContext())
	if err != nil {
		s.log.Error("failed to list devices", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch devices")
	}
	return c.JSON(items)
}

func (s *Server) handleExportEvents(c *fiber.Ctx) error {
	items, err := s.store.ListEvents(c.UserContext())
	if err != nil {
		s.log.Error("failed to list events", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch events")
	}
	data, err := ExportEvents(items)
	if err != nil {
		s.log.Error("failed to build export", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to export events")
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="caresync-events.xlsx"`)
	return c.Send(data)
}
