package config

import (
	"net/url"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// Redacted returns a copy of c with credentials masked.
func (c Config) Redacted() Config {
	if c.Grafana.APIKey != "" {
		c.Grafana.APIKey = redacted
	}
	if c.Grafana.Password != "" {
		c.Grafana.Password = redacted
	}
	if u, err := url.Parse(c.Grafana.URL); err == nil && u.User != nil {
		c.Grafana.URL = u.Redacted()
	}
	return c
}

// YAML renders the configuration with credentials masked.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
