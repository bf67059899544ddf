package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"zapkit/internal/chains"
)

// Options wires the HTTP API.
type Options struct {
	Registry    *chains.Registry
	Available   []uint64
	Services    *Services
	ReadTimeout time.Duration
	Logger      *zap.Logger
}

// NewApp registers every route on a new fiber app.
func NewApp(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{ReadTimeout: opts.ReadTimeout})

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/chains", NewChainsHandler(opts.Logger, opts.Registry, opts.Available).Handle())
	app.Get("/quote", NewQuoteHandler(opts.Logger, opts.Services).Handle())
	app.Get("/position", NewPositionHandler(opts.Logger, opts.Services).Handle())
	return app
}
