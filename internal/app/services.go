package app

import (
	"context"
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"dashsync/internal/config"
	"dashsync/internal/dashboard"
	"dashsync/internal/events"
	"dashsync/internal/grafana"
	"dashsync/internal/metrics"
	"dashsync/internal/reconciler"
	"dashsync/internal/source"
	"dashsync/pkg/logging"
)

// Services holds all initialized components used by the application.
//
// Field descriptions:
//   - Grafana: backend client, wrapped in a DryRunClient in dry-run mode
//   - Watcher: source of ConfigMap events, Kubernetes or filesystem backed
//   - Controller: the reconciliation loop
//   - Recorder: publishes sync outcomes as Kubernetes Events, or logs them
//   - Metrics: metrics and probe endpoint, nil when disabled
type Services struct {
	Grafana    grafana.Client
	Watcher    source.Watcher
	Controller *reconciler.Controller
	Recorder   events.Recorder
	Metrics    *metrics.Server

	// eventWriter drains the Kubernetes recorder's queue.
	eventWriter interface {
		Run(ctx context.Context) error
	}
}

// InitializeServices creates all components from the application configuration.
//
// Initialization Sequence:
//  1. Dashboard extractor from the file pattern and marker tag
//  2. Grafana client, wrapped for dry-run when requested
//  3. Source watcher and event recorder for the selected source mode
//  4. Controller
//  5. Metrics server, unless its bind address is empty
func InitializeServices(cfg *Config) (*Services, error) {
	settings := cfg.Settings

	selector, err := settings.LabelSelector()
	if err != nil {
		return nil, err
	}

	extractor, err := dashboard.NewExtractor(dashboard.Options{
		FilePattern: settings.Source.FilePattern,
		MarkerTag:   settings.Grafana.MarkerTag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard extractor: %w", err)
	}

	backend := cfg.Grafana
	if backend == nil {
		backend, err = grafana.NewClient(grafana.Config{
			URL:                settings.Grafana.URL,
			APIKey:             settings.Grafana.APIKey,
			Username:           settings.Grafana.Username,
			Password:           settings.Grafana.Password,
			FolderUID:          settings.Grafana.FolderUID,
			Timeout:            settings.Grafana.Timeout,
			InsecureSkipVerify: settings.Grafana.InsecureSkipVerify,
			UserAgent:          "dashsync/" + cfg.Version,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create grafana client: %w", err)
		}
	}
	if settings.DryRun {
		logging.Info("Bootstrap", "Dry-run mode: Grafana writes are logged, not performed")
		backend = grafana.NewDryRunClient(backend)
	}

	services := &Services{Grafana: backend}

	switch settings.Source.Mode {
	case config.SourceModeKubernetes:
		kubeClient, eventClient, err := kubernetesClients(cfg)
		if err != nil {
			return nil, err
		}
		services.Watcher = source.NewKubernetesWatcher(kubeClient, source.KubernetesWatcherOptions{
			Namespace:    settings.Source.Namespace,
			Selector:     selector,
			ResyncPeriod: settings.Source.ResyncPeriod,
		})

		if settings.DryRun {
			services.Recorder = events.NewLogRecorder()
		} else {
			recorder := events.NewKubernetesRecorder(eventClient)
			services.Recorder = recorder
			services.eventWriter = recorder
		}

	case config.SourceModeFilesystem:
		services.Watcher = source.NewFilesystemWatcher(source.FilesystemWatcherOptions{
			Path:             settings.Source.Path,
			Namespace:        settings.Source.Namespace,
			Selector:         selector,
			ResyncPeriod:     settings.Source.ResyncPeriod,
			DebounceInterval: settings.Source.DebounceInterval,
		})
		services.Recorder = events.NewLogRecorder()

	default:
		return nil, fmt.Errorf("unknown source mode %q", settings.Source.Mode)
	}

	services.Controller = reconciler.NewController(backend, extractor, services.Recorder, reconciler.Config{
		MaxAttempts:         settings.Reconcile.MaxAttempts,
		InitialBackoff:      settings.Reconcile.InitialBackoff,
		MaxBackoff:          settings.Reconcile.MaxBackoff,
		Concurrency:         settings.Reconcile.Concurrency,
		ShutdownGracePeriod: settings.Reconcile.ShutdownGracePeriod,
		MarkerTag:           settings.Grafana.MarkerTag,
	})

	if settings.Metrics.BindAddress != "" {
		services.Metrics = metrics.NewServer(settings.Metrics.BindAddress, services.Controller.HasSynced)
	}
	metrics.BuildInfo.WithLabelValues(cfg.Version).Set(1)

	return services, nil
}

// kubernetesClients returns the injected clients, building missing ones from
// the kubeconfig or the in-cluster configuration.
func kubernetesClients(cfg *Config) (kubernetes.Interface, client.Client, error) {
	kubeClient, eventClient := cfg.KubeClient, cfg.EventClient
	if kubeClient != nil && eventClient != nil {
		return kubeClient, eventClient, nil
	}

	restConfig, err := restConfig(cfg.Settings.Source.Kubeconfig)
	if err != nil {
		return nil, nil, err
	}
	restConfig.UserAgent = "dashsync/" + cfg.Version

	if kubeClient == nil {
		kubeClient, err = kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
		}
	}
	if eventClient == nil {
		eventClient, err = client.New(restConfig, client.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kubernetes event client: %w", err)
		}
	}
	return kubeClient, eventClient, nil
}

// restConfig loads an explicit kubeconfig, or falls back to KUBECONFIG, the
// in-cluster configuration and ~/.kube/config in that order.
func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		restConfig, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig %s: %w", kubeconfig, err)
		}
		return restConfig, nil
	}

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to find kubernetes configuration: %w", err)
	}
	return restConfig, nil
}
