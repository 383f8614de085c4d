package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/cinetix/docs"
	"github.com/kirinyoku/cinetix/internal/app"
	"github.com/kirinyoku/cinetix/internal/config"
	"github.com/kirinyoku/cinetix/internal/logger"
)

// @title cinetix API
// @version 1.0
// @description Cinema seat reservation and booking service.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	application, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
