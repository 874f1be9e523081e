package config

import "time"

// Source modes.
const (
	SourceModeKubernetes = "kubernetes"
	SourceModeFilesystem = "filesystem"
)

// Config is the top-level configuration structure for dashsync.
type Config struct {
	Grafana   GrafanaConfig   `mapstructure:"grafana" yaml:"grafana"`
	Source    SourceConfig    `mapstructure:"source" yaml:"source"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" yaml:"reconcile"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`

	// DryRun logs backend writes instead of performing them.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun"`
}

// GrafanaConfig defines how to reach the Grafana HTTP API.
type GrafanaConfig struct {
	URL                string        `mapstructure:"url" yaml:"url"`
	APIKey             string        `mapstructure:"apiKey" yaml:"apiKey,omitempty"`     // Bearer token, takes precedence over basic auth
	Username           string        `mapstructure:"username" yaml:"username,omitempty"` // Basic auth user
	Password           string        `mapstructure:"password" yaml:"password,omitempty"` // Basic auth password
	FolderUID          string        `mapstructure:"folderUid" yaml:"folderUid,omitempty"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecureSkipVerify" yaml:"insecureSkipVerify"`

	// MarkerTag is added to every managed dashboard and used to find them
	// again after a restart.
	MarkerTag string `mapstructure:"markerTag" yaml:"markerTag,omitempty"`
}

// SourceConfig selects where dashboard ConfigMaps are read from.
type SourceConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"` // kubernetes or filesystem

	Kubeconfig string `mapstructure:"kubeconfig" yaml:"kubeconfig,omitempty"`
	Namespace  string `mapstructure:"namespace" yaml:"namespace,omitempty"` // Empty watches all namespaces
	Selector   string `mapstructure:"selector" yaml:"selector,omitempty"`   // Label selector, e.g. grafana_dashboard=1

	// Path is the manifest directory in filesystem mode.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	FilePattern      string        `mapstructure:"filePattern" yaml:"filePattern"`
	ResyncPeriod     time.Duration `mapstructure:"resyncPeriod" yaml:"resyncPeriod"`
	DebounceInterval time.Duration `mapstructure:"debounceInterval" yaml:"debounceInterval"`
}

// ReconcileConfig tunes retries and parallelism of the controller.
type ReconcileConfig struct {
	MaxAttempts         int           `mapstructure:"maxAttempts" yaml:"maxAttempts"`
	InitialBackoff      time.Duration `mapstructure:"initialBackoff" yaml:"initialBackoff"`
	MaxBackoff          time.Duration `mapstructure:"maxBackoff" yaml:"maxBackoff"`
	Concurrency         int           `mapstructure:"concurrency" yaml:"concurrency"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdownGracePeriod" yaml:"shutdownGracePeriod"`
}

// MetricsConfig configures the metrics and health endpoint.
type MetricsConfig struct {
	// BindAddress is the listen address. Empty disables the endpoint.
	BindAddress string `mapstructure:"bindAddress" yaml:"bindAddress"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
}
