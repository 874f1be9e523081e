package reconciler

import (
	"strconv"
	"time"

	"dashsync/internal/dashboard"
	"dashsync/internal/source"
)

// desiredState is what the sources currently declare. It is owned by the
// controller loop and never read concurrently.
type desiredState struct {
	sources    map[source.SourceKey]*source.DashboardSource
	observedAt map[source.SourceKey]time.Time
	docs       map[dashboard.IdentityKey]*dashboard.Document
	bySource   map[source.SourceKey][]dashboard.IdentityKey

	// tombstones hold the last resource version of deleted sources, so a
	// late event for an older version does not resurrect them.
	tombstones map[source.SourceKey]string
}

func newDesiredState() *desiredState {
	return &desiredState{
		sources:    make(map[source.SourceKey]*source.DashboardSource),
		observedAt: make(map[source.SourceKey]time.Time),
		docs:       make(map[dashboard.IdentityKey]*dashboard.Document),
		bySource:   make(map[source.SourceKey][]dashboard.IdentityKey),
		tombstones: make(map[source.SourceKey]string),
	}
}

// set replaces the documents of src and returns the keys it produced before.
func (d *desiredState) set(src *source.DashboardSource, docs []*dashboard.Document, observedAt time.Time) []dashboard.IdentityKey {
	key := src.Key()
	previous := d.clearDocs(key)

	keys := make([]dashboard.IdentityKey, 0, len(docs))
	for _, doc := range docs {
		d.docs[doc.Key] = doc
		keys = append(keys, doc.Key)
	}
	d.sources[key] = src
	d.observedAt[key] = observedAt
	d.bySource[key] = keys
	delete(d.tombstones, key)
	return previous
}

// remove forgets src and returns the keys it produced.
func (d *desiredState) remove(key source.SourceKey) []dashboard.IdentityKey {
	previous := d.clearDocs(key)
	delete(d.sources, key)
	delete(d.observedAt, key)
	return previous
}

func (d *desiredState) clearDocs(key source.SourceKey) []dashboard.IdentityKey {
	previous := d.bySource[key]
	for _, docKey := range previous {
		delete(d.docs, docKey)
	}
	delete(d.bySource, key)
	return previous
}

// stale reports whether src is older than what is already known about its key.
func (d *desiredState) stale(src *source.DashboardSource) bool {
	key := src.Key()
	if known, ok := d.sources[key]; ok {
		if cmp, ok := compareResourceVersions(src.ResourceVersion, known.ResourceVersion); ok && cmp < 0 {
			return true
		}
	}
	if tombstone, ok := d.tombstones[key]; ok {
		if cmp, ok := compareResourceVersions(src.ResourceVersion, tombstone); ok && cmp <= 0 {
			return true
		}
	}
	return false
}

// compareResourceVersions compares two resource versions numerically. Resource
// versions are opaque in general: ok is false when either is not a number, and
// callers then treat the event as current.
func compareResourceVersions(a, b string) (int, bool) {
	x, err := strconv.ParseUint(a, 10, 64)
	if err != nil {
		return 0, false
	}
	y, err := strconv.ParseUint(b, 10, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	default:
		return 0, true
	}
}
