package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/api"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/integration"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/metrics"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/realtime"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE:  runServe,
}

func connectNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	return nats.Connect(cfg.URL,
		nats.Name("fleet-dispatch-server"),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			event := log.Error().Err(err)
			if sub != nil {
				event = event.Str("subject", sub.Subject)
			}
			event.Msg("NATS error")
		}),
	)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var hubMetrics events.HubMetrics
	var recorder dispatch.Recorder
	if m != nil {
		hubMetrics, recorder = m, m
	}
	hub := events.NewHub(cfg.Realtime.SubscriberBuffer, hubMetrics)

	// Local subscribers are fed by the relay when NATS is configured, so
	// events published on any instance reach every instance's hub.
	publishers := []events.Publisher{}
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")
		nc, err := connectNATS(cfg.NATS)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
			publishers = append(publishers, hub)
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")

			publishers = append(publishers, events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))
			relay := events.NewNATSRelay(nc, cfg.NATS.SubjectPrefix, hub)
			g.Go(func() error {
				return relay.Start(ctx)
			})
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
		publishers = append(publishers, hub)
	}

	if cfg.Integration.MQTT.BrokerURL != "" {
		forwarder, err := integration.NewMQTTForwarder(ctx, cfg.Integration.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to start MQTT forwarder, continuing without it")
		} else {
			defer forwarder.Close()
			publishers = append(publishers, forwarder)
		}
	}

	tokens := auth.NewJWTManager(&cfg.JWT)
	authSvc, err := auth.NewService(store, tokens)
	if err != nil {
		return err
	}

	svc := dispatch.NewService(store, events.Multi(publishers...), dispatch.Options{
		OrderNumberPrefix:      cfg.Lifecycle.OrderNumberPrefix,
		RequireProofOfDelivery: cfg.Lifecycle.RequireProofOfDelivery,
	}, recorder)

	apiServer := api.NewRESTServer(cfg, api.Deps{
		Store:    store,
		Auth:     authSvc,
		Dispatch: svc,
		Realtime: realtime.NewHandler(hub, cfg.Realtime, cfg.API.AllowedOrigins),
		Metrics:  m,
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("REST API server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Fleet dispatch server stopped")
	return err
}
