package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/config"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/database"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

type configContextKey struct{}

var rootCmd = &cobra.Command{
	Use:   "airmaestro",
	Short: "AirMaestro - Air Quality Monitoring Backend",
	Long: `AirMaestro ingests readings from ESP32 air quality monitors, corrects
them with a calibration model, classifies the air quality index and serves
the results to dashboards.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		slog.SetDefault(newLogger(cfg, os.Stderr))
		cmd.SetContext(context.WithValue(cmd.Context(), configContextKey{}, cfg))
		return nil
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configFrom returns the configuration loaded by the root command
func configFrom(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(configContextKey{}).(*config.Config)
	return cfg
}

// openDatabase connects with the configured DSN; callers must Close it
func openDatabase(cmd *cobra.Command) (*database.DatabaseManager, error) {
	dbManager, err := database.NewDatabaseManager(configFrom(cmd).DSN(), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbManager, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
