package cmd

import (
	"time"

	"bulkmerge/core/loader"
	"bulkmerge/core/logger"
	"bulkmerge/core/middleware/auth"
	"bulkmerge/feature/tables"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd exposes the bulk operations over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the HTTP server and loads every enabled feature.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()
		zap.ReplaceGlobals(a.log)

		srv := newServer(a)

		errc := make(chan error, 1)
		go func() {
			a.log.Info("Starting server", zap.String("port", a.cfg.Server.Port))
			errc <- srv.Listen(a.cfg.Server.Address())
		}()

		select {
		case err := <-errc:
			return err
		case <-cmd.Context().Done():
		}

		a.log.Info("Shutting down server...")
		return srv.ShutdownWithTimeout(30 * time.Second)
	},
}

// newServer builds the Fiber app with middleware and features.
func newServer(a *app) *fiber.App {
	server := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             a.cfg.Server.BodyLimit(),
	})

	// Request id first so every later log line carries it
	server.Use(requestid.New(requestid.Config{ContextKey: logger.RequestIDKey}))

	server.Use(func(c *fiber.Ctx) error {
		l := logger.WithRequestID(a.log, c)
		start := time.Now()
		err := c.Next()
		l.Info("Request handled",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
		)
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	server.Use(auth.New(auth.Config{ApiKey: a.cfg.Server.ApiKey}))

	mgr := loader.NewManager(a.log)
	mgr.Register(tables.NewFeature(a.engine, a.db, a.log))
	if err := mgr.LoadAll(server); err != nil {
		a.log.Error("Failed to load features", zap.Error(err))
	}

	return server
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
