// Package reconciler converges Grafana's dashboard store with the dashboards
// declared in watched sources.
//
// The Controller consumes source.Event values. Every event updates the desired
// state, derives the identity keys it touches and plans one backend write per
// key by comparing the desired document with the TrackedEntry index:
//
//	desired, not tracked       -> create
//	desired, checksum differs  -> update
//	tracked, not desired       -> delete
//
// A create that hits an existing dashboard is retried once as an update, an
// update of a missing dashboard once as a create, and a delete of a missing
// dashboard counts as done. Transient failures are retried per key with
// exponential backoff until Config.MaxAttempts is reached. Fatal failures are
// not retried until the key's content changes or a resync arrives.
//
// Resynced events carry the full set of sources and act as the safety net for
// anything the watch missed: keys tracked but no longer declared are deleted.
package reconciler
