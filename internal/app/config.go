package app

import (
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"dashsync/internal/config"
	"dashsync/internal/grafana"
)

// Config holds the application configuration
type Config struct {
	// Settings is the loaded dashsync configuration.
	Settings config.Config

	// Version is reported in the build info metric and the Grafana user agent.
	Version string

	// Clients built from Settings when nil.
	KubeClient  kubernetes.Interface
	EventClient client.Client
	Grafana     grafana.Client
}

// NewConfig creates a new application configuration
func NewConfig(settings config.Config, version string) *Config {
	return &Config{
		Settings: settings,
		Version:  version,
	}
}
