package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"dashsync/internal/source"
	"dashsync/pkg/logging"
)

// readyPollInterval is how often the initial sync is checked for completion.
const readyPollInterval = 250 * time.Millisecond

// Application represents the main application structure that bootstraps and runs dashsync.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: validate configuration, initialize logging, build services
//  2. Execution phase: run the controller until a signal arrives
//
// Example usage:
//
//	cfg := app.NewConfig(settings, version)
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication validates the configuration, configures logging and
// initializes all services. Validation failures are returned as
// config.ValidationErrors.
func NewApplication(cfg *Config) (*Application, error) {
	return newApplication(cfg, os.Stderr)
}

func newApplication(cfg *Config, logOutput io.Writer) (*Application, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Settings.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.Init(level, cfg.Settings.Log.Format, logOutput)

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run executes the application until ctx is cancelled or SIGINT/SIGTERM is
// received. A clean shutdown returns nil.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := a.config.Settings
	logging.Info("Bootstrap", "Starting dashsync %s (source=%s, grafana=%s, dryRun=%t)",
		a.config.Version, settings.Source.Mode, settings.Redacted().Grafana.URL, settings.DryRun)

	return runController(ctx, a.services)
}

// runController runs every component in one errgroup. The first failure
// cancels the others.
//
// Startup order:
//  1. Metrics server and Kubernetes event writer
//  2. Index rebuild from Grafana
//  3. Controller loop, then the source watcher feeding it
//  4. Readiness notification once the initial resync is processed
func runController(ctx context.Context, s *Services) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if s.Metrics != nil {
		g.Go(func() error {
			if err := s.Metrics.Run(ctx); err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}
	if s.eventWriter != nil {
		g.Go(func() error { return s.eventWriter.Run(ctx) })
	}

	checkGrafana(ctx, s)

	if err := s.Controller.Rebuild(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("failed to rebuild dashboard index: %w", err)
	}

	sourceEvents := make(chan source.Event)
	g.Go(func() error {
		return s.Controller.Run(ctx, sourceEvents)
	})
	g.Go(func() error {
		if err := s.Watcher.Start(ctx, sourceEvents); err != nil {
			return fmt.Errorf("failed to start source watcher: %w", err)
		}
		<-ctx.Done()
		logging.Info("Bootstrap", "Shutting down")
		return s.Watcher.Stop()
	})
	g.Go(func() error {
		return notifyReady(ctx, s.Controller.HasSynced)
	})

	return g.Wait()
}

// checkGrafana logs whether Grafana is reachable. An unreachable Grafana is
// not fatal: writes are retried once it comes back.
func checkGrafana(ctx context.Context, s *Services) {
	pinger, ok := s.Grafana.(interface{ Ping(context.Context) error })
	if !ok {
		return
	}
	if err := pinger.Ping(ctx); err != nil {
		logging.Warn("Bootstrap", "Grafana health check failed: %v", err)
		return
	}
	logging.Debug("Bootstrap", "Grafana is healthy")
}

// notifyReady waits for the initial sync and tells systemd the service is
// ready. Outside systemd the notification is a no-op.
func notifyReady(ctx context.Context, synced func() bool) error {
	err := wait.PollUntilContextCancel(ctx, readyPollInterval, true, func(context.Context) (bool, error) {
		return synced(), nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	logging.Info("Bootstrap", "Initial sync complete, dashsync is ready")
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logging.Warn("Bootstrap", "Failed to notify systemd: %v", err)
	} else if sent {
		logging.Debug("Bootstrap", "Sent readiness notification to systemd")
	}
	return nil
}
