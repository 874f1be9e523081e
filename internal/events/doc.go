// Package events records dashboard sync outcomes as Kubernetes Events on the
// source ConfigMaps.
//
// Messages are rendered from text/template templates, one per reason, with
// the sprig function map available:
//
//	DashboardCreated     Normal   dashboard created in Grafana
//	DashboardUpdated     Normal   dashboard content changed in Grafana
//	DashboardDeleted     Normal   dashboard removed from Grafana
//	DashboardInvalid     Warning  a data key could not be parsed
//	DashboardSyncFailed  Warning  a Grafana call failed permanently
//
// KubernetesRecorder never blocks the reconciler: events are buffered and
// written by a background worker, and dropped when the buffer is full.
package events
