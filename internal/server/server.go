package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lumos-Labs-HQ/flashgate/internal/gateway"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	Host        string
	Port        int
	Token       string
	Service     string
	Version     string
	BodyLimit   int
	ReadTimeout time.Duration
}

type Server struct {
	app      *fiber.App
	gateway  *gateway.Gateway
	log      *zap.Logger
	opts     Options
	instance string
}

func New(gw *gateway.Gateway, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		gateway:  gw,
		log:      log,
		opts:     opts,
		instance: uuid.NewString(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               opts.Service,
		BodyLimit:             opts.BodyLimit,
		ReadTimeout:           opts.ReadTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(s.logRequests)
	s.app.Use(recover.New())

	s.app.Post("/api", s.handleAPI)
	s.app.All("/api", func(c *fiber.Ctx) error {
		return transportError(c, fiber.StatusMethodNotAllowed, "method not allowed")
	})
	s.app.Get("/meta", s.handleMeta)

	s.app.Use(func(c *fiber.Ctx) error {
		return transportError(c, fiber.StatusNotFound, "not found")
	})
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Instance is the id generated for this process at start.
func (s *Server) Instance() string {
	return s.instance
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

func (s *Server) Start() error {
	s.log.Info("gateway listening",
		zap.String("addr", s.Addr()),
		zap.String("instance", s.instance))
	return s.app.Listen(s.Addr())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleAPI(c *fiber.Ctx) error {
	body := c.Body()

	if gerr := s.authenticate(c.Get(fiber.HeaderAuthorization)); gerr != nil {
		return nack(c, peekRequestID(body), gerr.Code, gerr.Message)
	}

	req, gerr := parseEnvelope(body)
	if gerr != nil {
		return nack(c, req.ID, gerr.Code, gerr.Message)
	}

	res, err := s.gateway.Dispatch(c.UserContext(), req)
	if err != nil {
		gerr := gateway.AsError(err)
		return nack(c, req.ID, gerr.Code, gerr.Message)
	}
	return ack(c, req.ID, res)
}

func (s *Server) authenticate(header string) *gateway.Error {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return &gateway.Error{Kind: gateway.KindAuth, Code: gateway.CodeUnauthorized, Message: "missing bearer token"}
	}
	if s.opts.Token == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.opts.Token)) != 1 {
		return &gateway.Error{Kind: gateway.KindAuth, Code: gateway.CodeInvalidToken, Message: "invalid token"}
	}
	return nil
}

func (s *Server) handleMeta(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":  s.opts.Service,
		"version":  s.opts.Version,
		"instance": s.instance,
		"actions":  s.gateway.Actions(),
	})
}

// handleError renders framework errors such as an oversized body.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		status = ferr.Code
	}
	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return transportError(c, status, err.Error())
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		// Render now so the logged status is the one sent.
		if herr := s.handleError(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	s.log.Info("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("latency", time.Since(start)))
	return nil
}
