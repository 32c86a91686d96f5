package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/seed"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "fleet-server",
	Short:         "Multi-tenant fleet dispatch API server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo tenant",
	RunE:  runSeed,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("fleet-server failed")
	}
}

// loadConfig loads configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = log.With().Str("service", cfg.Server.Name).Logger()

	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	store, err := storage.Open(connectCtx, cfg.Database.Driver, cfg.Database.DSN, storage.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Connected to database")
	return store, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}
	log.Info().Msg("Migrations applied")
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}

	svc := dispatch.NewService(store, nil, dispatch.Options{
		OrderNumberPrefix: cfg.Lifecycle.OrderNumberPrefix,
	}, nil)
	_, err = seed.Run(cmd.Context(), store, svc)
	return err
}
