package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/roomchat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	config := server.NewConfigFromEnv()
	logger := server.NewLogger(os.Stdout, config.LogLevel, config.LogFormat)

	app, err := server.New(*config, logger)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := server.CreateServer(app.Config().Port, app.SetupRoutes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server crashed", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutdown started")
	_ = server.ShutdownServer(httpServer, shutdownTimeout, logger)
	_ = app.Shutdown(shutdownTimeout)
	logger.Info("shutdown complete")
}
