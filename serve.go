package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helpcomp/teller-dashboard/api"
	"github.com/helpcomp/teller-dashboard/config"
	"github.com/helpcomp/teller-dashboard/forecast"
	"github.com/helpcomp/teller-dashboard/prom"
	"github.com/helpcomp/teller-dashboard/syncer"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type ServeCmd struct {
	SyncFlags `embed:""`

	ListenAddress    string `env:"LISTEN_ADDRESS" help:"${env} - Port or address to listen on for the API and telemetry" default:"5001"`
	SyncSchedule     string `env:"SYNC_SCHEDULE" help:"${env} - Cron schedule for the background sync (empty disables it)" default:"0 6,18 * * *"`
	SyncOnStart      bool   `env:"SYNC_ON_START" help:"${env} - Run a sync immediately after startup" default:"false"`
	EnablePrometheus bool   `env:"ENABLE_PROMETHEUS" help:"${env} - Enable Prometheus metrics" default:"true"`
	MetricsPath      string `env:"EXPORTER_METRICS_PATH" help:"${env} - Path under which to expose metrics" default:"/metrics"`
}

func listenAddr(v string) string {
	for _, r := range v {
		if r < '0' || r > '9' {
			return v
		}
	}
	return ":" + v
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := config.InitConfig(g.ConfigPath)
	if err != nil {
		return err
	}
	st, err := g.openStore(context.Background())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc, err := c.newSyncer(st, cfg)
	if err != nil {
		return err
	}
	srv := api.New(st, svc, forecast.New(st, cfg), version.Version)

	log.Logger.Info().
		Str("version", version.Info()).
		Msg("Starting " + AppName)

	// Create a channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()

	// Scheduled sync
	scheduler := cron.New()
	if c.SyncSchedule != "" {
		if _, err := scheduler.AddFunc(c.SyncSchedule, func() { runSync(runCtx, svc) }); err != nil {
			return err
		}
		scheduler.Start()
		log.Info().Str("Schedule", c.SyncSchedule).Msg("⏰ Scheduled sync enabled")
	}
	if c.SyncOnStart {
		go runSync(runCtx, svc)
	}

	if c.EnablePrometheus {
		prometheus.MustRegister(
			versioncollector.NewCollector(MetricsNamespace),
			prom.NewExporter(MetricsNamespace, st, svc),
		)
		srv.Handle("GET "+c.MetricsPath, promhttp.Handler())
		if c.MetricsPath != "/" && c.MetricsPath != "" {
			landingConfig := web.LandingConfig{
				Name:        AppName,
				Description: AppDesc,
				Version:     version.Print(AppName),
				Links: []web.LandingLinks{
					{
						Address: c.MetricsPath,
						Text:    "Metrics",
					},
					{
						Address: "/api/health",
						Text:    "Health",
					},
					{
						Address: "/api/info",
						Text:    "API",
					},
				},
			}
			landingPage, err := web.NewLandingPage(landingConfig)
			if err != nil {
				return err
			}
			srv.Handle("/", landingPage)
		}
	} else {
		log.Info().Msg("Prometheus metrics are disabled.")
	}

	server := &http.Server{
		Addr:         listenAddr(c.ListenAddress),
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Listen and serve
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting HTTP server on listen address %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Handle shutdown
	select {
	case sig := <-sigChan:
		log.Info().Msgf("Received signal %s. Shutting down", sig)
	case err := <-serverErr:
		log.Error().Err(err).Msg("Error starting HTTP server")
		return err
	}

	log.Info().Msg("Stopping scheduled sync")
	stopped := scheduler.Stop()
	stopRuns()
	<-stopped.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Info().Msg("Shutting down HTTP server...")
	_ = server.Shutdown(ctx)
	log.Info().Msg("Shutdown Complete; Exiting...")
	return nil
}

// runSync is a cron job. Overlapping runs are skipped.
func runSync(ctx context.Context, svc *syncer.Service) {
	_, err := svc.SyncAll(ctx)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		log.Warn().Msg("Previous sync still running, skipping")
	case err != nil:
		log.Error().Err(err).Msg("🚨 Scheduled sync failed")
	}
}
