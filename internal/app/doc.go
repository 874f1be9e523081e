// Package app provides application bootstrap and lifecycle management for dashsync.
//
// # Architecture Overview
//
// The app package wires the configuration loaded by package config into the
// running components:
//
// 1. **Bootstrap (`bootstrap.go`)**: validation, logging setup and the run loop
// 2. **Configuration (`config.go`)**: settings plus optional injected clients
// 3. **Services (`services.go`)**: construction of every component
//
// ## Service Management (services.go)
//
// InitializeServices builds, in order:
//
//  1. **Extractor**: parses ConfigMap payload entries into dashboard documents
//  2. **Grafana Client**: HTTP client, wrapped in a DryRunClient in dry-run mode
//  3. **Source Watcher**: a ConfigMap informer in kubernetes mode, a manifest
//     directory watcher in filesystem mode
//  4. **Event Recorder**: Kubernetes Events in kubernetes mode, log lines otherwise
//  5. **Controller**: the reconciliation loop
//  6. **Metrics Server**: Prometheus metrics and health probes, unless disabled
//
// Clients set on Config are used as given, which is how tests run the whole
// application against fakes.
//
// ## Lifecycle (bootstrap.go)
//
// Run starts every component in one errgroup:
//
//  1. Metrics server and the Kubernetes event writer start first
//  2. Grafana is pinged; failure only logs a warning
//  3. The index is rebuilt from dashboards carrying the marker tag; failure is fatal
//  4. The controller loop starts, then the watcher feeding it
//  5. Once the first resync has been applied, readiness is reported to systemd
//
// SIGINT and SIGTERM cancel the run. In-flight Grafana calls get the configured
// shutdown grace period to complete.
//
// # Usage
//
//	settings, err := config.Load(config.LoadOptions{Flags: cmd.Flags()})
//	if err != nil {
//	    return err
//	}
//	application, err := app.NewApplication(app.NewConfig(settings, version))
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
