package cmd

import (
	"context"
	"fmt"
	"time"

	"coinduel/config"
	"coinduel/database"
	"coinduel/events"
	"coinduel/metrics"
	"coinduel/repository"
	"coinduel/service"
	"coinduel/web"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg := config.Get()

	if cfg.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	userService := service.NewUserService(uowFactory, cfg.StartingBalance)
	roomService := service.NewRoomService(uowFactory)
	gameService := service.NewGameService(uowFactory, cfg.ResolveDelay)

	collector := metrics.NewCollector()
	collector.Bind(eventBus)
	metricsServer := metrics.StartServer(cfg.MetricsAddr, func(ctx context.Context) error {
		return db.Ping(ctx)
	})

	hub := web.NewHub(roomService)
	hub.Bind(eventBus)

	server := web.NewServer(web.Config{
		Addr:        cfg.HTTPAddr,
		TokenSecret: cfg.AuthTokenSecret,
		DefaultBet:  cfg.DefaultBet,
	}, userService, roomService, gameService, hub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.WithFields(log.Fields{
		"env":  cfg.Environment,
		"addr": cfg.HTTPAddr,
	}).Info("Service is running")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gameService.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Metrics server shutdown failed")
	}

	db.Close()
	log.Info("Shutdown completed")

	return nil
}
