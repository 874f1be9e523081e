package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dashsync/pkg/logging"
)

const (
	// EnvPrefix prefixes every environment variable read by dashsync.
	EnvPrefix = "DASHSYNC"

	configName = "dashsync"
	systemDir  = "/etc/dashsync"
)

// legacyEnv lists the environment variable names understood by earlier
// releases. They are read after the DASHSYNC_ names.
var legacyEnv = map[string][]string{
	"grafana.url":       {"GRAFANA_URL"},
	"grafana.apiKey":    {"GRAFANA_API_KEY"},
	"grafana.username":  {"GRAFANA_BASIC_AUTH_USERNAME"},
	"grafana.password":  {"GRAFANA_BASIC_AUTH_PASSWORD"},
	"grafana.markerTag": {"MARKER_TAG"},
	"source.namespace":  {"WATCH_NAMESPACE"},
	"source.selector":   {"CONFIGMAP_SELECTOR"},
	"dryRun":            {"DRY_RUN"},
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"grafana-url":          "grafana.url",
	"grafana-api-key":      "grafana.apiKey",
	"grafana-user":         "grafana.username",
	"grafana-password":     "grafana.password",
	"grafana-folder-uid":   "grafana.folderUid",
	"grafana-timeout":      "grafana.timeout",
	"grafana-insecure":     "grafana.insecureSkipVerify",
	"marker-tag":           "grafana.markerTag",
	"source":               "source.mode",
	"kubeconfig":           "source.kubeconfig",
	"watch-namespace":      "source.namespace",
	"selector":             "source.selector",
	"path":                 "source.path",
	"file-pattern":         "source.filePattern",
	"resync-period":        "source.resyncPeriod",
	"debounce-interval":    "source.debounceInterval",
	"max-attempts":         "reconcile.maxAttempts",
	"initial-backoff":      "reconcile.initialBackoff",
	"max-backoff":          "reconcile.maxBackoff",
	"concurrency":          "reconcile.concurrency",
	"shutdown-grace":       "reconcile.shutdownGracePeriod",
	"metrics-bind-address": "metrics.bindAddress",
	"log-level":            "log.level",
	"log-format":           "log.format",
	"dry-run":              "dryRun",
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an explicit configuration file. When empty, dashsync.yaml
	// is looked up in the working directory and /etc/dashsync, and a missing
	// file is not an error.
	ConfigFile string

	// Flags holds command line flags registered with AddFlags. Only flags
	// set by the user override other sources.
	Flags *pflag.FlagSet
}

// AddFlags registers the configuration flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.String("grafana-url", d.Grafana.URL, "URL of the Grafana instance")
	fs.String("grafana-api-key", d.Grafana.APIKey, "Grafana API key or service account token")
	fs.String("grafana-user", d.Grafana.Username, "Grafana user name for basic auth, unless an API key is used")
	fs.String("grafana-password", d.Grafana.Password, "Grafana password for basic auth")
	fs.String("grafana-folder-uid", d.Grafana.FolderUID, "Folder to place dashboards in")
	fs.Duration("grafana-timeout", d.Grafana.Timeout, "Timeout of a single Grafana API request")
	fs.Bool("grafana-insecure", d.Grafana.InsecureSkipVerify, "Skip TLS certificate verification for Grafana")
	fs.String("marker-tag", d.Grafana.MarkerTag, "Tag added to every managed dashboard, used to find them after a restart")

	fs.String("source", d.Source.Mode, "Where to read dashboard ConfigMaps from (kubernetes or filesystem)")
	fs.String("kubeconfig", d.Source.Kubeconfig, "Path to a kubeconfig file; in-cluster config is used when empty")
	fs.String("watch-namespace", d.Source.Namespace, "Namespace to watch for ConfigMaps; all namespaces when empty")
	fs.String("selector", d.Source.Selector, "ConfigMap label selector, e.g. grafana_dashboard=1")
	fs.String("path", d.Source.Path, "Directory of ConfigMap manifests in filesystem mode")
	fs.String("file-pattern", d.Source.FilePattern, "Pattern of ConfigMap keys holding dashboards")
	fs.Duration("resync-period", d.Source.ResyncPeriod, "Interval between full resyncs; 0 disables them")
	fs.Duration("debounce-interval", d.Source.DebounceInterval, "Quiet period before a changed manifest file is read")

	fs.Int("max-attempts", d.Reconcile.MaxAttempts, "Attempts for a failing dashboard before giving up")
	fs.Duration("initial-backoff", d.Reconcile.InitialBackoff, "Delay before the first retry")
	fs.Duration("max-backoff", d.Reconcile.MaxBackoff, "Maximum delay between retries")
	fs.Int("concurrency", d.Reconcile.Concurrency, "Parallel Grafana requests per reconciliation")
	fs.Duration("shutdown-grace", d.Reconcile.ShutdownGracePeriod, "Time allowed for in-flight requests on shutdown")

	fs.String("metrics-bind-address", d.Metrics.BindAddress, "Address of the metrics and health endpoint; empty disables it")
	fs.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "Log format (console or json)")

	fs.Bool("dry-run", d.DryRun, "Log Grafana writes instead of performing them")
}

// Load builds the configuration with precedence flags, environment,
// configuration file, defaults. The result is not validated.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &LoadError{Path: v.ConfigFileUsed(), Err: err}
	}
	return cfg, nil
}

// bindEnv binds every key to DASHSYNC_<SECTION>_<KEY> and its legacy names.
func bindEnv(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		input := append([]string{key, EnvName(key)}, legacyNames(key)...)
		if err := v.BindEnv(input...); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}
	return nil
}

// legacyNames returns the legacy variables of key. Viper reports keys in
// lower case.
func legacyNames(key string) []string {
	for k, names := range legacyEnv {
		if strings.EqualFold(k, key) {
			return names
		}
	}
	return nil
}

// EnvName returns the environment variable read for a configuration key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(systemDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			logging.Debug("ConfigLoader", "No %s.yaml found, using defaults and environment", configName)
			return nil
		}
		if path == "" {
			path = v.ConfigFileUsed()
		}
		return &LoadError{Path: path, Err: err}
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", v.ConfigFileUsed())
	return nil
}
