// Package server exposes metrics and health for the long-running modes.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type ServerConfig struct {
	// State reports the current listener state. Nil when no listener runs.
	State func() string
}

// Health is the body of /healthz.
type Health struct {
	Status   string `json:"status"`
	Listener string `json:"listener,omitempty"`
}

// Server returns a fiber.App serving /metrics and /healthz
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": time.Since(start),
		}).Debug("Request")
		return err
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		health := Health{Status: "ok"}
		if config != nil && config.State != nil {
			health.Listener = config.State()
			// A stopped listener will not come back on its own
			if health.Listener == "stopped" {
				health.Status = "down"
				return c.Status(fiber.StatusServiceUnavailable).JSON(health)
			}
		}
		return c.JSON(health)
	})

	return app
}

// Serve runs app on addr until ctx is cancelled.
func Serve(ctx context.Context, app *fiber.App, addr string) error {
	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Starting metrics server")
		errs <- app.Listen(addr)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		log.Info("Shutting down metrics server")
		return app.ShutdownWithTimeout(shutdownTimeout)
	}
}
