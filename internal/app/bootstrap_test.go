package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"dashsync/internal/config"
	"dashsync/internal/events"
	"dashsync/internal/grafana"
	"dashsync/internal/source"
)

// memoryGrafana is an in-memory grafana.Client.
type memoryGrafana struct {
	mu         sync.Mutex
	dashboards map[string]map[string]interface{}
	writes     int
}

func newMemoryGrafana() *memoryGrafana {
	return &memoryGrafana{dashboards: make(map[string]map[string]interface{})}
}

func (m *memoryGrafana) Create(_ context.Context, uid string, model map[string]interface{}) (*grafana.DashboardRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if _, ok := m.dashboards[uid]; ok {
		return nil, &grafana.APIError{Kind: grafana.KindConflict, Operation: "create", UID: uid, StatusCode: http.StatusPreconditionFailed}
	}
	m.dashboards[uid] = model
	return &grafana.DashboardRef{UID: uid}, nil
}

func (m *memoryGrafana) Update(_ context.Context, uid string, model map[string]interface{}) (*grafana.DashboardRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if _, ok := m.dashboards[uid]; !ok {
		return nil, &grafana.APIError{Kind: grafana.KindNotFound, Operation: "update", UID: uid, StatusCode: http.StatusNotFound}
	}
	m.dashboards[uid] = model
	return &grafana.DashboardRef{UID: uid}, nil
}

func (m *memoryGrafana) Delete(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if _, ok := m.dashboards[uid]; !ok {
		return &grafana.APIError{Kind: grafana.KindNotFound, Operation: "delete", UID: uid, StatusCode: http.StatusNotFound}
	}
	delete(m.dashboards, uid)
	return nil
}

func (m *memoryGrafana) Get(_ context.Context, uid string) (*grafana.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.dashboards[uid]
	if !ok {
		return nil, &grafana.APIError{Kind: grafana.KindNotFound, Operation: "get", UID: uid, StatusCode: http.StatusNotFound}
	}
	return &grafana.Dashboard{Model: model}, nil
}

func (m *memoryGrafana) Search(context.Context, grafana.SearchQuery) ([]grafana.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []grafana.SearchHit
	for uid, model := range m.dashboards {
		title, _ := model["title"].(string)
		hits = append(hits, grafana.SearchHit{UID: uid, Title: title})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].UID < hits[j].UID })
	return hits, nil
}

func (m *memoryGrafana) titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var titles []string
	for _, model := range m.dashboards {
		title, _ := model["title"].(string)
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

func (m *memoryGrafana) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

const dashboardManifest = `apiVersion: v1
kind: ConfigMap
metadata:
  name: team-dashboards
  labels:
    grafana_dashboard: "1"
data:
  overview.json: '{"title":"Overview"}'
  latency.json: '{"title":"Latency","tags":["slo"]}'
`

func testSettings() config.Config {
	settings := config.Default()
	settings.Grafana.URL = "http://grafana.invalid:3000"
	settings.Grafana.MarkerTag = "dashsync"
	settings.Source.Selector = "grafana_dashboard=1"
	settings.Source.DebounceInterval = 10 * time.Millisecond
	settings.Source.ResyncPeriod = 0
	settings.Reconcile.InitialBackoff = 10 * time.Millisecond
	settings.Reconcile.MaxBackoff = 50 * time.Millisecond
	settings.Metrics.BindAddress = ""
	return settings
}

// runApplication runs application in the background and returns a function
// that stops it and returns Run's error.
func runApplication(t *testing.T, application *Application) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- application.Run(ctx)
	}()

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-done:
			case <-time.After(10 * time.Second):
				t.Error("application did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	settings := testSettings()
	settings.Grafana.URL = ""
	settings.Reconcile.Concurrency = 0

	_, err := newApplication(NewConfig(settings, "test"), io.Discard)
	require.Error(t, err)

	var errs config.ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 2)
}

func TestInitializeServices_Filesystem(t *testing.T) {
	settings := testSettings()
	settings.Source.Mode = config.SourceModeFilesystem
	settings.Source.Path = t.TempDir()
	settings.Metrics.BindAddress = "127.0.0.1:0"

	services, err := InitializeServices(NewConfig(settings, "test"))
	require.NoError(t, err)

	assert.IsType(t, &grafana.HTTPClient{}, services.Grafana)
	assert.IsType(t, &source.FilesystemWatcher{}, services.Watcher)
	assert.IsType(t, &events.LogRecorder{}, services.Recorder)
	assert.NotNil(t, services.Metrics)
	assert.Nil(t, services.eventWriter)
}

func TestInitializeServices_Kubernetes(t *testing.T) {
	cfg := NewConfig(testSettings(), "test")
	cfg.KubeClient = k8sfake.NewSimpleClientset()
	cfg.EventClient = ctrlfake.NewClientBuilder().Build()

	services, err := InitializeServices(cfg)
	require.NoError(t, err)

	assert.IsType(t, &source.KubernetesWatcher{}, services.Watcher)
	assert.IsType(t, &events.KubernetesRecorder{}, services.Recorder)
	assert.NotNil(t, services.eventWriter)
	assert.Nil(t, services.Metrics)
}

func TestInitializeServices_DryRun(t *testing.T) {
	settings := testSettings()
	settings.DryRun = true
	cfg := NewConfig(settings, "test")
	cfg.KubeClient = k8sfake.NewSimpleClientset()
	cfg.EventClient = ctrlfake.NewClientBuilder().Build()

	services, err := InitializeServices(cfg)
	require.NoError(t, err)

	assert.IsType(t, &grafana.DryRunClient{}, services.Grafana)
	assert.IsType(t, &events.LogRecorder{}, services.Recorder, "dry-run does not write Kubernetes Events")
	assert.Nil(t, services.eventWriter)
}

func TestApplication_SyncsManifestDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dashboards.yaml"), []byte(dashboardManifest), 0o644))

	settings := testSettings()
	settings.Source.Mode = config.SourceModeFilesystem
	settings.Source.Path = dir

	backend := newMemoryGrafana()
	cfg := NewConfig(settings, "test")
	cfg.Grafana = backend

	application, err := newApplication(cfg, io.Discard)
	require.NoError(t, err)
	stop := runApplication(t, application)

	require.Eventually(t, func() bool {
		return application.Services().Controller.HasSynced() && len(backend.titles()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Latency", "Overview"}, backend.titles())

	// Removing the manifest removes its dashboards.
	require.NoError(t, os.Remove(filepath.Join(dir, "dashboards.yaml")))
	require.Eventually(t, func() bool { return len(backend.titles()) == 0 }, 5*time.Second, 10*time.Millisecond)

	assert.NoError(t, stop())
}

func TestApplication_SyncsConfigMapsAndRecordsEvents(t *testing.T) {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:            "node-dashboards",
			Namespace:       "monitoring",
			UID:             "cm-uid",
			ResourceVersion: "7",
			Labels:          map[string]string{"grafana_dashboard": "1"},
		},
		Data: map[string]string{"nodes.json": `{"title":"Nodes"}`},
	}
	ignored := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "settings", Namespace: "monitoring"},
		Data:       map[string]string{"other.json": `{"title":"Other"}`},
	}

	backend := newMemoryGrafana()
	eventClient := ctrlfake.NewClientBuilder().Build()

	settings := testSettings()
	settings.Source.Namespace = "monitoring"
	cfg := NewConfig(settings, "test")
	cfg.Grafana = backend
	cfg.KubeClient = k8sfake.NewSimpleClientset(cm, ignored)
	cfg.EventClient = eventClient

	application, err := newApplication(cfg, io.Discard)
	require.NoError(t, err)
	stop := runApplication(t, application)

	require.Eventually(t, func() bool {
		return application.Services().Controller.HasSynced() && len(backend.titles()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Nodes"}, backend.titles())

	require.Eventually(t, func() bool {
		var list corev1.EventList
		if err := eventClient.List(context.Background(), &list, client.InNamespace("monitoring")); err != nil {
			return false
		}
		for _, ev := range list.Items {
			if ev.Reason == string(events.ReasonDashboardCreated) && ev.InvolvedObject.Name == "node-dashboards" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	assert.NoError(t, stop())
}

func TestApplication_RestartAdoptsExistingDashboards(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dashboards.yaml"), []byte(dashboardManifest), 0o644))

	settings := testSettings()
	settings.Source.Mode = config.SourceModeFilesystem
	settings.Source.Path = dir
	backend := newMemoryGrafana()

	start := func() *Application {
		cfg := NewConfig(settings, "test")
		cfg.Grafana = backend
		application, err := newApplication(cfg, io.Discard)
		require.NoError(t, err)
		return application
	}

	first := start()
	stop := runApplication(t, first)
	require.Eventually(t, func() bool { return first.Services().Controller.HasSynced() && len(backend.titles()) == 2 },
		5*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	// A dashboard removed while the process was down is deleted after restart.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dashboards.yaml"), []byte(`apiVersion: v1
kind: ConfigMap
metadata:
  name: team-dashboards
  labels:
    grafana_dashboard: "1"
data:
  overview.json: '{"title":"Overview"}'
`), 0o644))

	second := start()
	stop = runApplication(t, second)
	require.Eventually(t, func() bool { return second.Services().Controller.HasSynced() }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"Overview"}, backend.titles())
	assert.Len(t, second.Services().Controller.Tracked(), 1)
	assert.NoError(t, stop())
}

func TestNotifyReady_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, notifyReady(ctx, func() bool { return false }))
}

func TestNotifyReady_OutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	assert.NoError(t, notifyReady(context.Background(), func() bool { return true }))
}

func TestRestConfig_MissingKubeconfig(t *testing.T) {
	_, err := restConfig(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
