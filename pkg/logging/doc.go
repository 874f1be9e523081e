// Package logging provides subsystem-tagged structured logging for dashsync.
//
// The package wraps a process-wide zap logger behind a small printf-style API so
// call sites stay short and every entry carries the subsystem that produced it.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("Reconciler", "Created dashboard %s", uid)
//	logging.Debug("Config", "Loaded configuration from %s", path)
//	logging.Warn("Watcher", "Watch interrupted, relisting")
//	logging.Error("Grafana", err, "Failed to delete dashboard %s", uid)
//
// # Subsystems
//
//   - **Bootstrap**: application startup and shutdown
//   - **Config**: configuration loading and validation
//   - **Watcher**: Kubernetes and filesystem source watchers
//   - **Extractor**: dashboard extraction from sources
//   - **Reconciler**: diffing and applying changes
//   - **Grafana**: backend client requests
//   - **Events**: Kubernetes Event publishing
//   - **Metrics**: metrics and probe server
//
// # Controller-Runtime Integration
//
// Init also installs the logger into controller-runtime and klog, so informer
// and client warnings are emitted through the same encoder and level.
//
// # Thread Safety
//
// The active logger is held in an atomic pointer; logging and re-initialization
// are safe from multiple goroutines.
package logging
