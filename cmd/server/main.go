package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/app"
	"github.com/Ayash-Bera/metricslab/backend/internal/config"
	"github.com/Ayash-Bera/metricslab/backend/internal/migration"
	"github.com/Ayash-Bera/metricslab/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	configPath    = flag.String("config", "", "Path to config.yaml (default ./config.yaml)")
	migrationsDir = flag.String("migrations", "./migrations", "SQL migrations applied at startup (empty to skip)")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.InitLogger(cfg.Log.Level)
	gin.SetMode(cfg.Server.Mode)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.WithError(err).Error("Failed to close application")
		}
	}()

	if _, err := migration.NewRunner(application.DB, logger).RunMigrations(*migrationsDir); err != nil {
		logger.WithError(err).Fatal("Database migrations failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.RunBackground(gctx)
	})
	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"port":            cfg.Server.Port,
			"storage_backend": cfg.Storage.Backend,
			"bus_backend":     cfg.Bus.Backend,
			"sync_resolution": cfg.Sync.Resolution,
		}).Info("Starting experiment server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("Server stopped with error")
	}
}
