// Package config provides configuration management for dashsync.
//
// Configuration is assembled by viper from four layers, highest precedence
// first:
//
//  1. Command line flags registered with AddFlags, when set explicitly
//  2. Environment variables
//  3. A YAML configuration file
//  4. Defaults (see Default)
//
// # Environment Variables
//
// Every key can be set through DASHSYNC_<SECTION>_<KEY>, for example
// DASHSYNC_GRAFANA_URL or DASHSYNC_RECONCILE_MAXATTEMPTS. The variable names
// used by earlier releases are still honoured:
//
//	GRAFANA_URL                  grafana.url
//	GRAFANA_API_KEY              grafana.apiKey
//	GRAFANA_BASIC_AUTH_USERNAME  grafana.username
//	GRAFANA_BASIC_AUTH_PASSWORD  grafana.password
//	MARKER_TAG                   grafana.markerTag
//	WATCH_NAMESPACE              source.namespace
//	CONFIGMAP_SELECTOR           source.selector
//	DRY_RUN                      dryRun
//
// # Configuration File
//
// The file is given with --config, or found as dashsync.yaml in the working
// directory or /etc/dashsync:
//
//	grafana:
//	  url: https://grafana.example.com
//	  markerTag: dashsync
//	source:
//	  namespace: monitoring
//	  selector: grafana_dashboard=1
//	reconcile:
//	  maxAttempts: 5
//	  concurrency: 4
//
// Validate reports every invalid field at once as ValidationErrors.
package config
