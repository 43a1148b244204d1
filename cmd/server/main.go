package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/georgeshao/fleetctx/internal/api"
	"github.com/georgeshao/fleetctx/internal/app"
	"github.com/georgeshao/fleetctx/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("FLEETCTX_CONFIG"), "path to YAML config file")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log, err := app.NewLogger(settings.LogLevel)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(settings, log, reg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	srv := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: settings.Policy.StepTimeout*time.Duration(settings.Policy.MaxSteps) + 30*time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	srv.Use(recover.New())
	srv.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
		Output: log.Writer(),
	}))

	api.SetupRoutes(srv, a.Store, a.Dispatcher, a.Audit, reg)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down server...")
		if err := srv.Shutdown(); err != nil {
			log.WithError(err).Error("Error during shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":     settings.ListenAddr,
		"database": settings.DatabasePath,
		"clock":    settings.Clock,
		"planner":  a.Dispatcher.HasPlanner(),
	}).Info("Starting fleetctx server")
	if err := srv.Listen(settings.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
