package reconciler

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/types"

	"dashsync/internal/dashboard"
	"dashsync/internal/events"
	"dashsync/internal/grafana"
	"dashsync/internal/source"
)

// backendCall records a single call made to fakeBackend.
type backendCall struct {
	op  string
	uid string
}

// fakeBackend is an in-memory grafana.Client with error injection and
// call recording.
type fakeBackend struct {
	mu         sync.Mutex
	dashboards map[string]map[string]interface{}
	calls      []backendCall

	// errs holds errors returned by the next calls of an operation on a uid,
	// keyed by "op/uid". An empty uid matches every dashboard.
	errs map[string][]error

	// alwaysFail makes every call of an operation fail, keyed by "op/uid".
	alwaysFail map[string]error

	// assigned maps a requested uid to the uid saves are stored under.
	assigned map[string]string

	delay       time.Duration
	inFlight    int
	maxInFlight int
}

var _ grafana.Client = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		dashboards: make(map[string]map[string]interface{}),
		errs:       make(map[string][]error),
		alwaysFail: make(map[string]error),
		assigned:   make(map[string]string),
	}
}

// assignUID makes saves of uid store the dashboard under another uid.
func (f *fakeBackend) assignUID(uid dashboard.IdentityKey, assigned string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[string(uid)] = assigned
}

// savedUID returns the uid a save of uid is stored under. Callers hold f.mu.
func (f *fakeBackend) savedUID(uid string) string {
	if assigned, ok := f.assigned[uid]; ok {
		return assigned
	}
	return uid
}

func (f *fakeBackend) failNext(op string, uid dashboard.IdentityKey, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := op + "/" + string(uid)
	f.errs[key] = append(f.errs[key], errs...)
}

func (f *fakeBackend) failAlways(op string, uid dashboard.IdentityKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alwaysFail[op+"/"+string(uid)] = err
}

func (f *fakeBackend) clearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = make(map[string][]error)
	f.alwaysFail = make(map[string]error)
}

// begin records a call and returns the injected error, if any.
func (f *fakeBackend) begin(op, uid string) error {
	f.mu.Lock()
	f.calls = append(f.calls, backendCall{op: op, uid: uid})
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	for _, key := range []string{op + "/" + uid, op + "/"} {
		if err, ok := f.alwaysFail[key]; ok {
			return err
		}
		if queue := f.errs[key]; len(queue) > 0 {
			f.errs[key] = queue[1:]
			return queue[0]
		}
	}
	return nil
}

func (f *fakeBackend) Create(_ context.Context, uid string, model map[string]interface{}) (*grafana.DashboardRef, error) {
	if err := f.begin("create", uid); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.dashboards[uid]; exists {
		return nil, apiError(grafana.KindConflict, "create", uid, http.StatusPreconditionFailed)
	}
	saved := f.savedUID(uid)
	f.dashboards[saved] = model
	return &grafana.DashboardRef{UID: saved, Status: "success", Version: 1}, nil
}

func (f *fakeBackend) Update(_ context.Context, uid string, model map[string]interface{}) (*grafana.DashboardRef, error) {
	if err := f.begin("update", uid); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.dashboards[uid]; !exists {
		return nil, apiError(grafana.KindNotFound, "update", uid, http.StatusNotFound)
	}
	saved := f.savedUID(uid)
	f.dashboards[saved] = model
	return &grafana.DashboardRef{UID: saved, Status: "success", Version: 2}, nil
}

func (f *fakeBackend) Delete(_ context.Context, uid string) error {
	if err := f.begin("delete", uid); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.dashboards[uid]; !exists {
		return apiError(grafana.KindNotFound, "delete", uid, http.StatusNotFound)
	}
	delete(f.dashboards, uid)
	return nil
}

func (f *fakeBackend) Get(_ context.Context, uid string) (*grafana.Dashboard, error) {
	if err := f.begin("get", uid); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	model, exists := f.dashboards[uid]
	if !exists {
		return nil, apiError(grafana.KindNotFound, "get", uid, http.StatusNotFound)
	}
	return &grafana.Dashboard{Model: model}, nil
}

func (f *fakeBackend) Search(_ context.Context, query grafana.SearchQuery) ([]grafana.SearchHit, error) {
	if err := f.begin("search", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var hits []grafana.SearchHit
	for uid, model := range f.dashboards {
		if hasAllTags(model, query.Tags) {
			title, _ := model["title"].(string)
			hits = append(hits, grafana.SearchHit{UID: uid, Title: title, Type: "dash-db"})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].UID < hits[j].UID })
	return hits, nil
}

func hasAllTags(model map[string]interface{}, tags []string) bool {
	present := map[string]bool{}
	if list, ok := model["tags"].([]interface{}); ok {
		for _, t := range list {
			if s, ok := t.(string); ok {
				present[s] = true
			}
		}
	}
	for _, t := range tags {
		if !present[t] {
			return false
		}
	}
	return true
}

// seed stores a dashboard directly, bypassing call recording.
func (f *fakeBackend) seed(uid string, model map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dashboards[uid] = model
}

func (f *fakeBackend) has(uid dashboard.IdentityKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.dashboards[string(uid)]
	return ok
}

func (f *fakeBackend) uids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	uids := make([]string, 0, len(f.dashboards))
	for uid := range f.dashboards {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// writes returns the recorded create, update and delete calls.
func (f *fakeBackend) writes() []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backendCall
	for _, c := range f.calls {
		if c.op == "create" || c.op == "update" || c.op == "delete" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) countCalls(op string, uid dashboard.IdentityKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op && c.uid == string(uid) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func apiError(kind grafana.ErrorKind, op, uid string, status int) error {
	return &grafana.APIError{Kind: kind, Operation: op, UID: uid, StatusCode: status, Message: http.StatusText(status)}
}

// recordedEvent is a single call made to recordingRecorder.
type recordedEvent struct {
	ref    events.ObjectReference
	reason events.EventReason
	data   events.EventData
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingRecorder) Event(ref events.ObjectReference, reason events.EventReason, data events.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{ref: ref, reason: reason, data: data})
}

func (r *recordingRecorder) reasons() []events.EventReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventReason, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.reason)
	}
	return out
}

func newTestController(t *testing.T, backend grafana.Client, recorder events.Recorder, cfg Config) *Controller {
	t.Helper()

	extractor, err := dashboard.NewExtractor(dashboard.Options{MarkerTag: cfg.MarkerTag})
	require.NoError(t, err)

	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 5 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 20 * time.Millisecond
	}

	c := NewController(backend, extractor, recorder, cfg)
	t.Cleanup(c.retries.stop)
	return c
}

func newSource(namespace, name, rv string, data map[string]string) *source.DashboardSource {
	return &source.DashboardSource{
		Namespace:       namespace,
		Name:            name,
		UID:             types.UID("uid-" + name),
		ResourceVersion: rv,
		Labels:          map[string]string{"grafana_dashboard": "1"},
		Data:            data,
	}
}

func dashboardJSON(title string) string {
	return fmt.Sprintf(`{"title": %q, "panels": [{"type": "graph"}]}`, title)
}

func added(src *source.DashboardSource) source.Event {
	return source.Event{Kind: source.EventAdded, Key: src.Key(), Source: src}
}

func modified(src *source.DashboardSource) source.Event {
	return source.Event{Kind: source.EventModified, Key: src.Key(), Source: src}
}

func deleted(src *source.DashboardSource) source.Event {
	return source.Event{Kind: source.EventDeleted, Key: src.Key(), Source: src}
}

func resynced(sources ...*source.DashboardSource) source.Event {
	return source.Event{Kind: source.EventResynced, Sources: sources, Reason: source.ResyncPeriodic}
}

func keyOf(src *source.DashboardSource, payloadKey string) dashboard.IdentityKey {
	return dashboard.IdentityKeyFor(src.Namespace, src.Name, payloadKey)
}

func trackedKeys(c *Controller) []string {
	var keys []string
	for _, entry := range c.Tracked() {
		keys = append(keys, string(entry.Key))
	}
	return keys
}
