package reconciler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dashsync/internal/dashboard"
	"dashsync/internal/events"
	"dashsync/internal/grafana"
	"dashsync/internal/metrics"
	"dashsync/internal/source"
	"dashsync/pkg/logging"
)

// Controller converges Grafana's dashboard store with the dashboards declared
// by the watched sources.
//
// Events are processed one at a time by a single loop. Within one event the
// backend calls for different keys run concurrently, at most one per key, and
// their outcomes are folded into the index after all calls have returned.
type Controller struct {
	cfg       Config
	backend   grafana.Client
	extractor *dashboard.Extractor
	recorder  events.Recorder

	// desired, retries and existing are owned by the loop. existing marks
	// untracked keys whose create ran into a dashboard already in Grafana.
	desired  *desiredState
	retries  *retryScheduler
	existing map[dashboard.IdentityKey]bool

	// mu guards the fields below against status readers. The loop is the
	// only writer and reads them without locking.
	mu          sync.RWMutex
	index       *index
	failures    map[dashboard.IdentityKey]*Failure
	parseErrors map[source.SourceKey][]*dashboard.ParseError
	synced      bool

	now func() time.Time
}

// NewController creates a Controller. A nil recorder discards events.
func NewController(backend grafana.Client, extractor *dashboard.Extractor, recorder events.Recorder, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	if recorder == nil {
		recorder = events.NopRecorder{}
	}

	return &Controller{
		cfg:         cfg,
		backend:     backend,
		extractor:   extractor,
		recorder:    recorder,
		desired:     newDesiredState(),
		retries:     newRetryScheduler(cfg.InitialBackoff, cfg.MaxBackoff),
		existing:    make(map[dashboard.IdentityKey]bool),
		index:       newIndex(),
		failures:    make(map[dashboard.IdentityKey]*Failure),
		parseErrors: make(map[source.SourceKey][]*dashboard.ParseError),
		now:         time.Now,
	}
}

// Run processes source events and due retries until ctx is cancelled or
// events is closed. Pending retries are cancelled on return.
func (c *Controller) Run(ctx context.Context, sourceEvents <-chan source.Event) error {
	defer c.retries.stop()

	logging.Info("Reconciler", "Starting dashboard controller (concurrency=%d, maxAttempts=%d)",
		c.cfg.Concurrency, c.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			logging.Info("Reconciler", "Dashboard controller stopped")
			return nil

		case ev, ok := <-sourceEvents:
			if !ok {
				logging.Info("Reconciler", "Event channel closed, stopping dashboard controller")
				return nil
			}
			c.HandleEvent(ctx, ev)

		case req := <-c.retries.requests():
			c.handleRetry(ctx, req)
		}
	}
}

// HandleEvent processes one event to completion. It must not be called
// concurrently with itself or with Run.
func (c *Controller) HandleEvent(ctx context.Context, ev source.Event) {
	p := newPass()
	metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	var keys []dashboard.IdentityKey
	switch ev.Kind {
	case source.EventAdded, source.EventModified:
		logging.Debug("Reconciler", "[%s] %s %s (rv %s)", p.id, ev.Kind, ev.Key, ev.ResourceVersion())
		keys = c.applySource(p, ev)

	case source.EventDeleted:
		logging.Debug("Reconciler", "[%s] Deleted %s", p.id, ev.Key)
		keys = c.removeSource(p, ev)

	case source.EventResynced:
		logging.Debug("Reconciler", "[%s] Resync (%s) with %d sources", p.id, ev.Reason, len(ev.Sources))
		keys = c.applySnapshot(p, ev)

	default:
		logging.Warn("Reconciler", "[%s] Ignoring event of unknown kind %q", p.id, ev.Kind)
		return
	}

	c.reconcile(ctx, p, keys)

	if ev.Kind == source.EventResynced {
		c.mu.Lock()
		first := !c.synced
		c.synced = true
		c.mu.Unlock()
		if first {
			logging.Info("Reconciler", "Initial sync complete, tracking %d dashboards", len(c.Tracked()))
		}
	}
}

// applySource replaces the desired documents of an added or modified source.
func (c *Controller) applySource(p *pass, ev source.Event) []dashboard.IdentityKey {
	src := ev.Source
	if src == nil {
		logging.Warn("Reconciler", "[%s] %s event for %s carries no source", p.id, ev.Kind, ev.Key)
		return nil
	}
	if c.desired.stale(src) {
		logging.Debug("Reconciler", "[%s] Ignoring stale %s event for %s (rv %s)", p.id, ev.Kind, src.Key(), src.ResourceVersion)
		return nil
	}

	keys := keySet{}
	keys.add(c.extract(p, src, c.observedAt(ev))...)
	keys.add(c.index.ownedBy(src.Key())...)

	touched := keys.sorted()
	c.touch(touched, false)
	return touched
}

// removeSource drops a deleted source and everything it owned.
func (c *Controller) removeSource(p *pass, ev source.Event) []dashboard.IdentityKey {
	key := ev.Key
	if key == (source.SourceKey{}) && ev.Source != nil {
		key = ev.Source.Key()
	}

	rv := ev.ResourceVersion()
	if known, ok := c.desired.sources[key]; ok {
		if rv == "" {
			rv = known.ResourceVersion
		} else if cmp, ok := compareResourceVersions(rv, known.ResourceVersion); ok && cmp < 0 {
			logging.Debug("Reconciler", "[%s] Ignoring stale Deleted event for %s (rv %s)", p.id, key, rv)
			return nil
		}
	}
	if rv != "" {
		c.desired.tombstones[key] = rv
	}

	keys := keySet{}
	keys.add(c.desired.remove(key)...)
	keys.add(c.index.ownedBy(key)...)
	c.setParseErrors(p, key, nil)

	touched := keys.sorted()
	c.touch(touched, false)
	return touched
}

// applySnapshot replaces the whole desired state with a resync snapshot.
func (c *Controller) applySnapshot(p *pass, ev source.Event) []dashboard.IdentityKey {
	metrics.ResyncsTotal.WithLabelValues(string(ev.Reason)).Inc()

	snapshotAt := c.observedAt(ev)
	keys := keySet{}
	seen := make(map[source.SourceKey]bool, len(ev.Sources))

	for _, src := range ev.Sources {
		seen[src.Key()] = true
		if c.desired.stale(src) {
			logging.Debug("Reconciler", "[%s] Keeping newer state of %s over snapshot (rv %s)", p.id, src.Key(), src.ResourceVersion)
			continue
		}
		keys.add(c.extract(p, src, snapshotAt)...)
	}

	for key := range c.desired.sources {
		if seen[key] {
			continue
		}
		// Sources observed after the listing was taken are missing from it.
		if c.desired.observedAt[key].After(snapshotAt) {
			continue
		}
		keys.add(c.desired.remove(key)...)
		c.setParseErrors(p, key, nil)
	}

	for key := range c.desired.tombstones {
		if !seen[key] {
			delete(c.desired.tombstones, key)
		}
	}

	for key := range c.desired.docs {
		keys.add(key)
	}
	keys.add(c.index.keys()...)
	for key := range c.failures {
		keys.add(key)
	}

	touched := keys.sorted()
	c.touch(touched, true)
	return touched
}

// extract stores the documents of src as desired and returns every key the
// source produced before or produces now, valid or not.
func (c *Controller) extract(p *pass, src *source.DashboardSource, observedAt time.Time) []dashboard.IdentityKey {
	docs, parseErrs := c.extractor.Extract(src)
	previous := c.desired.set(src, docs, observedAt)
	c.setParseErrors(p, src.Key(), parseErrs)

	keys := append([]dashboard.IdentityKey(nil), previous...)
	for _, doc := range docs {
		keys = append(keys, doc.Key)
	}
	for _, perr := range parseErrs {
		keys = append(keys, perr.Key)
	}
	return keys
}

func (c *Controller) observedAt(ev source.Event) time.Time {
	if ev.Timestamp.IsZero() {
		return c.now()
	}
	return ev.Timestamp
}

// touch starts a fresh retry series for keys. Fatal marks survive unless
// clearFatal is set; they are otherwise lifted by a content change.
func (c *Controller) touch(keys []dashboard.IdentityKey, clearFatal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.retries.forget(key)
		if f, ok := c.failures[key]; ok && (clearFatal || !f.Fatal) {
			delete(c.failures, key)
		}
	}
}

// setParseErrors records the parse errors of a source, reporting the ones
// that were not known before.
func (c *Controller) setParseErrors(p *pass, key source.SourceKey, parseErrs []*dashboard.ParseError) {
	c.mu.Lock()
	previous := c.parseErrors[key]
	if len(parseErrs) == 0 {
		delete(c.parseErrors, key)
	} else {
		c.parseErrors[key] = parseErrs
	}
	c.mu.Unlock()

	known := make(map[string]string, len(previous))
	for _, perr := range previous {
		known[perr.PayloadKey] = perr.Err.Error()
	}

	for _, perr := range parseErrs {
		if msg, ok := known[perr.PayloadKey]; ok && msg == perr.Err.Error() {
			continue
		}
		metrics.ParseErrorsTotal.Inc()
		logging.Warn("Reconciler", "[%s] Skipping invalid dashboard %s/%s: %v", p.id, key, perr.PayloadKey, perr.Err)
		c.recorder.Event(c.objectRef(key), events.ReasonDashboardInvalid, events.EventData{
			Key:        string(perr.Key),
			PayloadKey: perr.PayloadKey,
			Error:      SanitizeErrorMessage(perr.Err.Error()),
		})
	}
}

func (c *Controller) objectRef(key source.SourceKey) events.ObjectReference {
	ref := events.ObjectReference{Name: key.Name, Namespace: key.Namespace}
	if src, ok := c.desired.sources[key]; ok {
		ref.UID = src.UID
	}
	return ref
}

// handleRetry re-plans a key whose retry timer fired.
func (c *Controller) handleRetry(ctx context.Context, req retryRequest) {
	if !c.retries.current(req) {
		return
	}
	c.retries.fired(req.key)

	p := newPass()
	switch stateOf(c.desired.docs[req.key], c.index.get(req.key)) {
	case StateTracked, StateAbsent:
		logging.Debug("Reconciler", "[%s] Retry of %s no longer needed", p.id, req.key)
		delete(c.existing, req.key)
		c.mu.Lock()
		delete(c.failures, req.key)
		c.retries.forget(req.key)
		c.mu.Unlock()
		c.updateGauges()
		return
	}

	logging.Debug("Reconciler", "[%s] Retrying %s", p.id, req.key)
	c.reconcile(ctx, p, []dashboard.IdentityKey{req.key})
}

// Tracked returns the tracked entries ordered by key.
func (c *Controller) Tracked() []TrackedEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.snapshot()
}

// Failures returns the keys whose last operation failed, ordered by key.
func (c *Controller) Failures() []Failure {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Failure, 0, len(c.failures))
	for _, f := range c.failures {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ParseErrors returns the current parse errors ordered by source and payload key.
func (c *Controller) ParseErrors() []*dashboard.ParseError {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*dashboard.ParseError
	for _, errs := range c.parseErrors {
		out = append(out, errs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source.String() < out[j].Source.String()
		}
		return out[i].PayloadKey < out[j].PayloadKey
	})
	return out
}

// HasSynced reports whether the first resync has been processed.
func (c *Controller) HasSynced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

func (c *Controller) updateGauges() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	metrics.TrackedDashboards.Set(float64(c.index.len()))
	metrics.FailedDashboards.Set(float64(len(c.failures)))
}

// pass identifies one reconciliation in the logs.
type pass struct {
	id string
}

func newPass() *pass {
	return &pass{id: uuid.NewString()}
}
