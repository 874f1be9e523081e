package source

import (
	"context"
	"maps"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
)

// SourceKey identifies a dashboard source by namespace and name.
type SourceKey struct {
	Namespace string
	Name      string
}

// String returns the key in namespace/name form.
func (k SourceKey) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// DashboardSource is the observed state of one labeled ConfigMap.
// It is never mutated after construction.
type DashboardSource struct {
	Namespace string
	Name      string
	UID       types.UID

	// ResourceVersion is the per-object change token reported by the source.
	ResourceVersion string

	Labels      map[string]string
	Annotations map[string]string

	// Data maps payload keys to raw dashboard documents.
	Data map[string]string
}

// Key returns the source key.
func (s *DashboardSource) Key() SourceKey {
	return SourceKey{Namespace: s.Namespace, Name: s.Name}
}

// PayloadKeys returns the data keys in sorted order.
func (s *DashboardSource) PayloadKeys() []string {
	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromConfigMap converts a ConfigMap into a DashboardSource, copying all maps.
func FromConfigMap(cm *corev1.ConfigMap) *DashboardSource {
	return &DashboardSource{
		Namespace:       cm.Namespace,
		Name:            cm.Name,
		UID:             cm.UID,
		ResourceVersion: cm.ResourceVersion,
		Labels:          maps.Clone(cm.Labels),
		Annotations:     maps.Clone(cm.Annotations),
		Data:            maps.Clone(cm.Data),
	}
}

// EventKind is the kind of change a watcher reports.
type EventKind string

const (
	// EventAdded reports a newly observed source.
	EventAdded EventKind = "Added"

	// EventModified reports a changed source.
	EventModified EventKind = "Modified"

	// EventDeleted reports a removed source.
	EventDeleted EventKind = "Deleted"

	// EventResynced carries the complete set of currently matching sources.
	EventResynced EventKind = "Resynced"
)

// ResyncReason tells why a Resynced event was emitted.
type ResyncReason string

const (
	ResyncInitial  ResyncReason = "initial"
	ResyncPeriodic ResyncReason = "periodic"
	ResyncRelist   ResyncReason = "relist"
)

// Event is a single notification from a Watcher.
type Event struct {
	Kind EventKind

	// Key identifies the source for Added, Modified and Deleted events.
	Key SourceKey

	// Source is the new state for Added and Modified events. For Deleted
	// events it holds the last known state when the watcher has one.
	Source *DashboardSource

	// Sources lists every matching source for Resynced events.
	Sources []*DashboardSource

	// Reason is set on Resynced events.
	Reason ResyncReason

	Timestamp time.Time
}

// ResourceVersion returns the resource version carried by the event, if any.
func (e Event) ResourceVersion() string {
	if e.Source == nil {
		return ""
	}
	return e.Source.ResourceVersion
}

// Watcher delivers source events in per-object order.
//
// Start returns once the initial listing is complete; events, including the
// initial Resynced event, are sent from background goroutines. Sends block
// until the receiver accepts them or ctx is cancelled.
type Watcher interface {
	Start(ctx context.Context, events chan<- Event) error
	Stop() error
}

// send delivers an event unless ctx is done first.
func send(ctx context.Context, events chan<- Event, ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// sortSources orders sources by namespace and name.
func sortSources(sources []*DashboardSource) {
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Namespace != sources[j].Namespace {
			return sources[i].Namespace < sources[j].Namespace
		}
		return sources[i].Name < sources[j].Name
	})
}
