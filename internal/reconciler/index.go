package reconciler

import (
	"sort"

	"dashsync/internal/dashboard"
	"dashsync/internal/source"
)

// index maps identity keys to tracked entries, with a secondary index by
// owning source.
type index struct {
	entries  map[dashboard.IdentityKey]*TrackedEntry
	bySource map[source.SourceKey]map[dashboard.IdentityKey]struct{}
}

func newIndex() *index {
	return &index{
		entries:  make(map[dashboard.IdentityKey]*TrackedEntry),
		bySource: make(map[source.SourceKey]map[dashboard.IdentityKey]struct{}),
	}
}

func (i *index) get(key dashboard.IdentityKey) *TrackedEntry {
	return i.entries[key]
}

// put stores entry, replacing any entry with the same key and moving it to
// its new owner.
func (i *index) put(entry *TrackedEntry) {
	if old, ok := i.entries[entry.Key]; ok {
		i.unlink(old)
	}
	i.entries[entry.Key] = entry

	if entry.Source == (source.SourceKey{}) {
		return
	}
	keys, ok := i.bySource[entry.Source]
	if !ok {
		keys = make(map[dashboard.IdentityKey]struct{})
		i.bySource[entry.Source] = keys
	}
	keys[entry.Key] = struct{}{}
}

func (i *index) remove(key dashboard.IdentityKey) {
	entry, ok := i.entries[key]
	if !ok {
		return
	}
	i.unlink(entry)
	delete(i.entries, key)
}

func (i *index) unlink(entry *TrackedEntry) {
	keys, ok := i.bySource[entry.Source]
	if !ok {
		return
	}
	delete(keys, entry.Key)
	if len(keys) == 0 {
		delete(i.bySource, entry.Source)
	}
}

// ownedBy returns the keys owned by src in sorted order.
func (i *index) ownedBy(src source.SourceKey) []dashboard.IdentityKey {
	keys := make([]dashboard.IdentityKey, 0, len(i.bySource[src]))
	for key := range i.bySource[src] {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

// keys returns every tracked key in sorted order.
func (i *index) keys() []dashboard.IdentityKey {
	keys := make([]dashboard.IdentityKey, 0, len(i.entries))
	for key := range i.entries {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

func (i *index) len() int {
	return len(i.entries)
}

// snapshot returns copies of all entries ordered by key.
func (i *index) snapshot() []TrackedEntry {
	out := make([]TrackedEntry, 0, len(i.entries))
	for _, key := range i.keys() {
		out = append(out, *i.entries[key])
	}
	return out
}

func sortKeys(keys []dashboard.IdentityKey) {
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
}

// keySet collects identity keys without duplicates.
type keySet map[dashboard.IdentityKey]struct{}

func (s keySet) add(keys ...dashboard.IdentityKey) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

func (s keySet) sorted() []dashboard.IdentityKey {
	keys := make([]dashboard.IdentityKey, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}
