package reconciler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"dashsync/internal/dashboard"
	"dashsync/internal/events"
	"dashsync/internal/grafana"
	"dashsync/internal/metrics"
	"dashsync/internal/source"
	"dashsync/pkg/logging"
)

// rebuildBackoff bounds the startup search for managed dashboards.
var rebuildBackoff = wait.Backoff{
	Steps:    5,
	Duration: 500 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

// action is one planned backend write.
type action struct {
	op    Operation
	key   dashboard.IdentityKey
	doc   *dashboard.Document
	entry *TrackedEntry
}

// result is the outcome of an action. performed differs from the planned
// operation when a create fell back to update or the other way around.
type result struct {
	action
	performed Operation
	ref       *grafana.DashboardRef
	err       error

	// exists is set when a create found the dashboard already in Grafana.
	exists bool
}

// plan returns the actions that move keys towards their desired state.
func (c *Controller) plan(keys []dashboard.IdentityKey) []action {
	var actions []action
	for _, key := range keys {
		doc := c.desired.docs[key]
		entry := c.index.get(key)

		var op Operation
		switch stateOf(doc, entry) {
		case StatePendingCreate:
			op = OperationCreate
			if c.existing[key] {
				op = OperationUpdate
			}
		case StatePendingUpdate:
			op = OperationUpdate
		case StatePendingDelete:
			op = OperationDelete
		default:
			delete(c.existing, key)
			continue
		}

		if f := c.failures[key]; f != nil && f.Fatal && f.Checksum == checksumOf(doc) {
			logging.Debug("Reconciler", "Skipping %s of %s: failed permanently for this content", op, key)
			continue
		}
		actions = append(actions, action{op: op, key: key, doc: doc, entry: entry})
	}
	return actions
}

// reconcile plans keys, runs the resulting actions and folds the outcomes.
func (c *Controller) reconcile(ctx context.Context, p *pass, keys []dashboard.IdentityKey) {
	defer c.updateGauges()

	actions := c.plan(keys)
	if len(actions) == 0 {
		logging.Debug("Reconciler", "[%s] %d keys in scope, nothing to do", p.id, len(keys))
		return
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	results := c.execute(callCtx, p, actions)

	var created, updated, deleted, failed int
	for _, r := range results {
		if r.err != nil {
			failed++
			c.failed(p, r)
			continue
		}
		switch r.performed {
		case OperationCreate:
			created++
		case OperationUpdate:
			updated++
		case OperationDelete:
			deleted++
		}
		c.succeeded(p, r)
	}

	logging.Info("Reconciler", "[%s] Reconciled %d keys: %d created, %d updated, %d deleted, %d failed",
		p.id, len(keys), created, updated, deleted, failed)
}

// execute runs actions concurrently, bounded by Config.Concurrency.
func (c *Controller) execute(ctx context.Context, p *pass, actions []action) []result {
	results := make([]result, len(actions))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, a := range actions {
		g.Go(func() error {
			results[i] = c.apply(ctx, p, a)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Controller) apply(ctx context.Context, p *pass, a action) result {
	r := result{action: a, performed: a.op}

	switch a.op {
	case OperationCreate:
		r.ref, r.err = c.call(ctx, OperationCreate, string(a.key), a.doc)
		if grafana.IsConflict(r.err) {
			logging.Info("Reconciler", "[%s] Dashboard %s already exists, updating it instead", p.id, a.key)
			r.exists = true
			r.performed = OperationUpdate
			r.ref, r.err = c.call(ctx, OperationUpdate, string(a.key), a.doc)
		}

	case OperationUpdate:
		r.ref, r.err = c.call(ctx, OperationUpdate, backendID(a), a.doc)
		if grafana.IsNotFound(r.err) {
			logging.Info("Reconciler", "[%s] Dashboard %s disappeared from Grafana, creating it again", p.id, a.key)
			r.performed = OperationCreate
			r.ref, r.err = c.call(ctx, OperationCreate, string(a.key), a.doc)
		}

	case OperationDelete:
		start := time.Now()
		r.err = c.backend.Delete(ctx, backendID(a))
		observe(OperationDelete, r.err, start)
		if grafana.IsNotFound(r.err) {
			logging.Debug("Reconciler", "[%s] Dashboard %s was already gone", p.id, a.key)
			r.err = nil
		}
	}

	return r
}

// call issues a create or update of doc under uid. A save that Grafana
// stored under another uid, for example by taking over a dashboard with the
// same title, is a fatal collision.
func (c *Controller) call(ctx context.Context, op Operation, uid string, doc *dashboard.Document) (*grafana.DashboardRef, error) {
	start := time.Now()
	var (
		ref *grafana.DashboardRef
		err error
	)
	if op == OperationCreate {
		ref, err = c.backend.Create(ctx, uid, doc.Content)
	} else {
		ref, err = c.backend.Update(ctx, uid, doc.Content)
	}
	if err == nil && ref != nil && ref.UID != "" && ref.UID != uid {
		err = &grafana.APIError{
			Kind:      grafana.KindFatal,
			Operation: string(op),
			UID:       uid,
			Message:   fmt.Sprintf("dashboard was saved under uid %q, which collides with another dashboard", ref.UID),
		}
	}
	observe(op, err, start)
	return ref, err
}

// backendID returns the uid Grafana knows the tracked dashboard of a by.
func backendID(a action) string {
	if a.entry != nil && a.entry.BackendID != "" {
		return a.entry.BackendID
	}
	return string(a.key)
}

func observe(op Operation, err error, start time.Time) {
	label := metrics.ResultSuccess
	if err != nil {
		label = grafana.KindOf(err).String()
	}
	metrics.ObserveBackendRequest(string(op), label, time.Since(start))
}

// succeeded records a completed action in the index.
func (c *Controller) succeeded(p *pass, r result) {
	c.mu.Lock()
	if r.op == OperationDelete {
		c.index.remove(r.key)
	} else {
		id := string(r.key)
		if r.performed == OperationUpdate {
			id = backendID(r.action)
		}
		c.index.put(&TrackedEntry{
			Key:        r.key,
			Checksum:   r.doc.Checksum,
			BackendID:  id,
			Source:     r.doc.Source,
			PayloadKey: r.doc.PayloadKey,
			Title:      r.doc.Title,
			AppliedAt:  c.now(),
		})
	}
	delete(c.failures, r.key)
	delete(c.existing, r.key)
	c.retries.forget(r.key)
	c.mu.Unlock()

	switch r.performed {
	case OperationCreate:
		logging.Info("Reconciler", "[%s] Created dashboard %q (%s) from %s", p.id, r.doc.Title, r.key, r.doc.Ref())
		c.recorder.Event(c.objectRef(r.doc.Source), events.ReasonDashboardCreated, dashboardData(r.action))
	case OperationUpdate:
		logging.Info("Reconciler", "[%s] Updated dashboard %q (%s) from %s", p.id, r.doc.Title, r.key, r.doc.Ref())
		c.recorder.Event(c.objectRef(r.doc.Source), events.ReasonDashboardUpdated, dashboardData(r.action))
	case OperationDelete:
		logging.Info("Reconciler", "[%s] Deleted dashboard %q (%s)", p.id, r.entry.Title, r.key)
		if r.entry.Source != (source.SourceKey{}) {
			c.recorder.Event(c.objectRef(r.entry.Source), events.ReasonDashboardDeleted, dashboardData(r.action))
		}
	}
}

// failed records a failed action and schedules its retry, unless the error
// is fatal or the attempts are exhausted.
func (c *Controller) failed(p *pass, r result) {
	kind := grafana.KindOf(r.err)
	attempts := c.retries.attempts(r.key)
	now := c.now()

	// Later attempts update the dashboard the create ran into.
	if r.exists {
		c.existing[r.key] = true
	}

	f := &Failure{
		Key:         r.key,
		Source:      ownerOf(r.action),
		Operation:   r.op,
		Checksum:    checksumOf(r.doc),
		Attempts:    attempts,
		Error:       SanitizeErrorMessage(r.err.Error()),
		LastAttempt: now,
	}

	switch {
	case kind == grafana.KindFatal:
		f.Fatal = true
		c.retries.forget(r.key)
		logging.Error("Reconciler", r.err, "[%s] Failed to %s dashboard %s, not retrying until its content changes", p.id, r.op, r.key)

	case attempts >= c.cfg.MaxAttempts:
		f.GaveUp = true
		c.retries.forget(r.key)
		logging.Error("Reconciler", r.err, "[%s] Giving up on %s of dashboard %s after %d attempts", p.id, r.op, r.key, attempts)

	default:
		delay := c.retries.schedule(r.key)
		f.NextRetry = now.Add(delay)
		metrics.RetriesTotal.Inc()
		logging.Warn("Reconciler", "[%s] Failed to %s dashboard %s (%s), retrying in %s (attempt %d/%d): %v",
			p.id, r.op, r.key, kind, delay, attempts, c.cfg.MaxAttempts, r.err)
	}

	c.mu.Lock()
	c.failures[r.key] = f
	c.mu.Unlock()

	if f.Fatal || f.GaveUp {
		if owner := f.Source; owner != (source.SourceKey{}) {
			data := dashboardData(r.action)
			data.Error = f.Error
			data.Attempts = attempts
			c.recorder.Event(c.objectRef(owner), events.ReasonDashboardSyncFailed, data)
		}
	}
}

// Rebuild seeds the index with the dashboards carrying the marker tag. The
// rebuilt entries have no checksum and no owner: the first pass updates the
// ones still declared and the first resync deletes the rest.
func (c *Controller) Rebuild(ctx context.Context) error {
	if c.cfg.MarkerTag == "" {
		logging.Info("Reconciler", "No marker tag configured, starting with an empty index")
		return nil
	}

	var hits []grafana.SearchHit
	err := retry.OnError(rebuildBackoff, func(err error) bool {
		return ctx.Err() == nil && grafana.IsTransient(err)
	}, func() error {
		var err error
		hits, err = c.backend.Search(ctx, grafana.SearchQuery{Tags: []string{c.cfg.MarkerTag}})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list dashboards tagged %q: %w", c.cfg.MarkerTag, err)
	}

	c.mu.Lock()
	for _, hit := range hits {
		if hit.UID == "" {
			continue
		}
		key := dashboard.IdentityKey(hit.UID)
		if c.index.get(key) != nil {
			continue
		}
		c.index.put(&TrackedEntry{Key: key, BackendID: hit.UID, Title: hit.Title})
	}
	tracked := c.index.len()
	c.mu.Unlock()
	c.updateGauges()

	logging.Info("Reconciler", "Rebuilt index with %d dashboards tagged %q", tracked, c.cfg.MarkerTag)
	return nil
}

// callContext returns the context for backend calls of one pass. It outlives
// ctx by the shutdown grace period so in-flight calls can complete.
func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}

		timer := time.NewTimer(c.cfg.ShutdownGracePeriod)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			logging.Warn("Reconciler", "Shutdown grace period of %s expired, cancelling backend calls", c.cfg.ShutdownGracePeriod)
			cancel()
		}
	}()

	return callCtx, func() {
		close(done)
		cancel()
	}
}

func checksumOf(doc *dashboard.Document) string {
	if doc == nil {
		return ""
	}
	return doc.Checksum
}

func ownerOf(a action) source.SourceKey {
	if a.doc != nil {
		return a.doc.Source
	}
	if a.entry != nil {
		return a.entry.Source
	}
	return source.SourceKey{}
}

func dashboardData(a action) events.EventData {
	data := events.EventData{Key: string(a.key), Operation: string(a.op)}
	switch {
	case a.doc != nil:
		data.Title = a.doc.Title
		data.PayloadKey = a.doc.PayloadKey
	case a.entry != nil:
		data.Title = a.entry.Title
		data.PayloadKey = a.entry.PayloadKey
	}
	return data
}
