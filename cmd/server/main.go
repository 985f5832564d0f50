package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFile string
	overrides  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "wirechat",
	Short: "Multi-room chat relay",
	Long: `wirechat relays chat between clients speaking a length-prefixed binary
protocol over TCP or WebSocket, with rooms, private messages and history
stored in SQLite. A small REST API exposes rooms, history and presence.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay",
	RunE: func(cmd *cobra.Command, _ []string) error {
		bootLogger := log.New("info")
		cfg, path, err := config.Load(bootLogger, configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.UpdateFrom(overrides)

		logger := log.New(cfg.LogLevel)
		logger.Info().Str("config", path).Str("version", version).Msg("starting wirechat relay")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		if err := application.Run(ctx); err != nil {
			return fmt.Errorf("server exited with error: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml (default ./config.yaml)")

	flags := serveCmd.Flags()
	flags.StringVar(&overrides.TCPAddr, "tcp-addr", "", "TCP listen address")
	flags.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address")
	flags.StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
