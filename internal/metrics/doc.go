// Package metrics defines the Prometheus collectors of dashsync and the HTTP
// server exposing them together with liveness and readiness probes.
package metrics
