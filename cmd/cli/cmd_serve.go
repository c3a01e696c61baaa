package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/cache"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/calibration"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/ingest"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/metrics"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/mqttingest"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/realtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AirMaestro server",
	Long: `Start the AirMaestro server to receive sensor readings over HTTP and
MQTT and to serve dashboard queries.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := configFrom(cmd)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbManager, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	// Run migrations
	if err := dbManager.Init(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	calibrator := calibration.NewCalibrator(cfg.CalibrationModelPath, logger)
	// a missing model is not fatal, corrections fall back to raw values
	_ = calibrator.Load()

	opts := []ingest.Option{
		ingest.WithStore(dbManager),
		ingest.WithDirectory(dbManager),
		ingest.WithDefaultDeviceID(cfg.DefaultDeviceID),
		ingest.WithLogger(logger),
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		collector := metrics.NewCollector()
		opts = append(opts, ingest.WithObserver(collector))
		metricsHandler = collector.Handler()
	}

	if cfg.NATSURL != "" {
		publisher, err := realtime.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			// live fan-out is optional; ingestion keeps working without it
			logger.Error("❌ Realtime publishing disabled", slog.String("error", err.Error()))
		} else {
			defer publisher.Close()
			opts = append(opts, ingest.WithPublisher(publisher))
		}
	}

	pipeline := ingest.NewPipeline(cache.New(cfg.PersistInterval), calibrator, opts...)

	if cfg.MQTTBrokerURL != "" {
		subscriber, err := mqttingest.NewSubscriber(mqttingest.Config{
			BrokerURL: cfg.MQTTBrokerURL,
			Topic:     cfg.MQTTTopic,
			ClientID:  cfg.MQTTClientID,
		}, pipeline, logger)
		if err != nil {
			return err
		}
		if err := subscriber.Start(ctx); err != nil {
			return err
		}
	}

	// Setup Router
	routeManager := NewRouteManager(RouteOptions{
		Pipeline:       pipeline,
		Store:          dbManager,
		Cache:          pipeline.Cache(),
		Health:         dbManager,
		Calibration:    calibrator,
		Metrics:        metricsHandler,
		APIKeyHeader:   cfg.DeviceAPIKeyHeader,
		AllowedOrigins: cfg.AllowedOriginList(),
		OfflineAfter:   2 * cfg.PersistInterval,
		Logger:         logger,
	})
	routeManager.Setup()

	addr := ":" + cfg.ServerPort

	// Start server
	server := &http.Server{
		Handler:      routeManager.Router,
		Addr:         addr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", slog.String("error", err.Error()))
		}
	}()

	logger.Info("Starting AirMaestro server",
		slog.String("addr", addr),
		slog.Duration("persist_interval", cfg.PersistInterval))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
