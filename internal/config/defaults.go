package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultFilePattern selects the ConfigMap keys holding dashboards.
	DefaultFilePattern = "*.json"

	// DefaultMetricsBindAddress serves metrics and health probes.
	DefaultMetricsBindAddress = ":8080"
)

// Default returns the default configuration.
func Default() Config {
	return Config{
		Grafana: GrafanaConfig{
			Timeout: 30 * time.Second,
		},
		Source: SourceConfig{
			Mode:             SourceModeKubernetes,
			FilePattern:      DefaultFilePattern,
			ResyncPeriod:     5 * time.Minute,
			DebounceInterval: 500 * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			MaxAttempts:         5,
			InitialBackoff:      time.Second,
			MaxBackoff:          5 * time.Minute,
			Concurrency:         4,
			ShutdownGracePeriod: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			BindAddress: DefaultMetricsBindAddress,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// setDefaults registers every key with viper. Keys without a default are
// registered too, otherwise AutomaticEnv does not see them on Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("grafana.url", d.Grafana.URL)
	v.SetDefault("grafana.apiKey", d.Grafana.APIKey)
	v.SetDefault("grafana.username", d.Grafana.Username)
	v.SetDefault("grafana.password", d.Grafana.Password)
	v.SetDefault("grafana.folderUid", d.Grafana.FolderUID)
	v.SetDefault("grafana.timeout", d.Grafana.Timeout)
	v.SetDefault("grafana.insecureSkipVerify", d.Grafana.InsecureSkipVerify)
	v.SetDefault("grafana.markerTag", d.Grafana.MarkerTag)

	v.SetDefault("source.mode", d.Source.Mode)
	v.SetDefault("source.kubeconfig", d.Source.Kubeconfig)
	v.SetDefault("source.namespace", d.Source.Namespace)
	v.SetDefault("source.selector", d.Source.Selector)
	v.SetDefault("source.path", d.Source.Path)
	v.SetDefault("source.filePattern", d.Source.FilePattern)
	v.SetDefault("source.resyncPeriod", d.Source.ResyncPeriod)
	v.SetDefault("source.debounceInterval", d.Source.DebounceInterval)

	v.SetDefault("reconcile.maxAttempts", d.Reconcile.MaxAttempts)
	v.SetDefault("reconcile.initialBackoff", d.Reconcile.InitialBackoff)
	v.SetDefault("reconcile.maxBackoff", d.Reconcile.MaxBackoff)
	v.SetDefault("reconcile.concurrency", d.Reconcile.Concurrency)
	v.SetDefault("reconcile.shutdownGracePeriod", d.Reconcile.ShutdownGracePeriod)

	v.SetDefault("metrics.bindAddress", d.Metrics.BindAddress)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("dryRun", d.DryRun)
}
