// Package source observes dashboard sources and reports changes as Events.
//
// A dashboard source is a ConfigMap selected by a label selector. Two Watcher
// implementations are provided: KubernetesWatcher, backed by a client-go shared
// informer, and FilesystemWatcher, which reads ConfigMap manifests from a local
// directory.
//
// Both watchers emit a Resynced event carrying every matching source after the
// initial listing, periodically when a resync period is configured, and after
// the underlying stream was interrupted. Consumers treat Resynced as the
// authoritative desired state.
package source
