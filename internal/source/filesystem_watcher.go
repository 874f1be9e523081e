package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/labels"

	"dashsync/pkg/logging"
)

// FilesystemWatcherOptions configures a FilesystemWatcher.
type FilesystemWatcherOptions struct {
	// Path is the directory holding ConfigMap manifests.
	Path string

	// Namespace is assigned to manifests that do not set one. Defaults to "default".
	Namespace string

	// Selector filters ConfigMaps by label. Nil selects everything.
	Selector labels.Selector

	// ResyncPeriod is the interval between periodic Resynced events. Zero disables them.
	ResyncPeriod time.Duration

	// DebounceInterval is how long to wait for further writes to a file.
	DebounceInterval time.Duration
}

// FilesystemWatcher implements Watcher for a directory of ConfigMap manifests.
//
// Each file may hold several ConfigMaps. Resource versions are assigned from a
// watcher-wide counter whenever the content of a source changes, so they are
// monotonic per source. Debounced file changes are processed by a single
// goroutine, which preserves per-source ordering.
type FilesystemWatcher struct {
	mu sync.Mutex

	path             string
	namespace        string
	selector         labels.Selector
	resyncPeriod     time.Duration
	debounceInterval time.Duration

	watcher *fsnotify.Watcher

	// pending holds debounce timers keyed by file path.
	pending map[string]*time.Timer
	changed chan string

	// The fields below are owned by the processing goroutine once Start returns.
	files   map[string][]SourceKey
	owner   map[SourceKey]string
	sources map[SourceKey]*DashboardSource
	version uint64

	ctx     context.Context
	cancel  context.CancelFunc
	events  chan<- Event
	running bool
	done    chan struct{}
}

// NewFilesystemWatcher creates a watcher for the manifest directory in opts.
func NewFilesystemWatcher(opts FilesystemWatcherOptions) *FilesystemWatcher {
	selector := opts.Selector
	if selector == nil {
		selector = labels.Everything()
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = corev1.NamespaceDefault
	}
	debounce := opts.DebounceInterval
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}

	return &FilesystemWatcher{
		path:             opts.Path,
		namespace:        namespace,
		selector:         selector,
		resyncPeriod:     opts.ResyncPeriod,
		debounceInterval: debounce,
		pending:          make(map[string]*time.Timer),
		changed:          make(chan string),
		files:            make(map[string][]SourceKey),
		owner:            make(map[SourceKey]string),
		sources:          make(map[SourceKey]*DashboardSource),
	}
}

// Start scans the directory and begins watching it for changes.
func (w *FilesystemWatcher) Start(ctx context.Context, events chan<- Event) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.watcher = watcher
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.events = events
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	initial, err := w.rescan()
	if err != nil {
		close(w.done)
		_ = w.Stop()
		return err
	}

	go w.run(initial)

	logging.Info("Watcher", "Watching %s for ConfigMap manifests", w.path)
	return nil
}

// Stop closes the fsnotify watcher and waits for the processing goroutine.
func (w *FilesystemWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	watcher := w.watcher
	done := w.done
	w.mu.Unlock()

	if err := watcher.Close(); err != nil {
		logging.Error("Watcher", err, "Error closing filesystem watcher")
	}

	<-done

	logging.Info("Watcher", "Stopped filesystem watcher")
	return nil
}

func (w *FilesystemWatcher) run(initial []*DashboardSource) {
	defer close(w.done)

	send(w.ctx, w.events, Event{Kind: EventResynced, Sources: initial, Reason: ResyncInitial})

	var tick <-chan time.Time
	if w.resyncPeriod > 0 {
		ticker := time.NewTicker(w.resyncPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher", err, "Filesystem watcher error, rescanning %s", w.path)
			w.emitRescan(ResyncRelist)

		case path := <-w.changed:
			w.processFile(path)

		case <-tick:
			w.emitRescan(ResyncPeriodic)
		}
	}
}

func (w *FilesystemWatcher) emitRescan(reason ResyncReason) {
	listedAt := time.Now()
	sources, err := w.rescan()
	if err != nil {
		logging.Error("Watcher", err, "Failed to rescan %s", w.path)
		return
	}
	send(w.ctx, w.events, Event{Kind: EventResynced, Sources: sources, Reason: reason, Timestamp: listedAt})
}

// handleFsEvent schedules a debounced reload of the affected file.
func (w *FilesystemWatcher) handleFsEvent(event fsnotify.Event) {
	if !IsManifestFile(event.Name) {
		return
	}
	if event.Op == fsnotify.Chmod {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[event.Name]; ok {
		timer.Stop()
	}

	path := event.Name
	w.pending[path] = time.AfterFunc(w.debounceInterval, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.changed <- path:
		case <-w.ctx.Done():
		}
	})
}

// processFile reloads one manifest file and emits per-source events.
func (w *FilesystemWatcher) processFile(path string) {
	cms, err := ReadManifestFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		// Keep the previous state; a partially written file is retried on its next write.
		logging.Warn("Watcher", "Failed to read manifest %s: %v", path, err)
		return
	}

	seen := make(map[SourceKey]bool)
	var current []SourceKey
	for _, cm := range cms {
		src := w.toSource(cm)
		if !w.selector.Matches(labels.Set(src.Labels)) {
			continue
		}
		key := src.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		current = append(current, key)
		w.owner[key] = path

		prev, existed := w.sources[key]
		if existed && sameContent(prev, src) {
			continue
		}
		src.ResourceVersion = w.nextVersion()
		w.sources[key] = src

		kind := EventModified
		if !existed {
			kind = EventAdded
		}
		send(w.ctx, w.events, Event{Kind: kind, Key: key, Source: src})
	}

	for _, key := range w.files[path] {
		if seen[key] || w.owner[key] != path {
			continue
		}
		last := w.sources[key]
		delete(w.sources, key)
		delete(w.owner, key)
		send(w.ctx, w.events, Event{Kind: EventDeleted, Key: key, Source: last})
	}

	if len(current) == 0 {
		delete(w.files, path)
	} else {
		w.files[path] = current
	}
}

// rescan reloads every manifest in the directory and returns the matching sources.
func (w *FilesystemWatcher) rescan() ([]*DashboardSource, error) {
	entries, err := os.ReadDir(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", w.path, err)
	}

	files := make(map[string][]SourceKey)
	owner := make(map[SourceKey]string)
	sources := make(map[SourceKey]*DashboardSource)

	for _, entry := range entries {
		if entry.IsDir() || !IsManifestFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.path, entry.Name())
		cms, err := ReadManifestFile(path)
		if err != nil {
			logging.Warn("Watcher", "Skipping manifest %s: %v", path, err)
			// Keep what this file contributed before rather than deleting its sources.
			for _, key := range w.files[path] {
				if w.owner[key] == path {
					files[path] = append(files[path], key)
					owner[key] = path
					sources[key] = w.sources[key]
				}
			}
			continue
		}

		for _, cm := range cms {
			src := w.toSource(cm)
			if !w.selector.Matches(labels.Set(src.Labels)) {
				continue
			}
			key := src.Key()
			if _, dup := sources[key]; dup {
				logging.Warn("Watcher", "ConfigMap %s defined more than once, using %s", key, path)
			}
			files[path] = append(files[path], key)
			owner[key] = path

			if prev, ok := w.sources[key]; ok && sameContent(prev, src) {
				sources[key] = prev
				continue
			}
			src.ResourceVersion = w.nextVersion()
			sources[key] = src
		}
	}

	w.files, w.owner, w.sources = files, owner, sources

	result := make([]*DashboardSource, 0, len(sources))
	for _, src := range sources {
		result = append(result, src)
	}
	sortSources(result)
	return result, nil
}

func (w *FilesystemWatcher) toSource(cm *corev1.ConfigMap) *DashboardSource {
	src := FromConfigMap(cm)
	if src.Namespace == "" {
		src.Namespace = w.namespace
	}
	return src
}

func (w *FilesystemWatcher) nextVersion() string {
	w.version++
	return strconv.FormatUint(w.version, 10)
}

func sameContent(a, b *DashboardSource) bool {
	return equality.Semantic.DeepEqual(a.Data, b.Data) &&
		equality.Semantic.DeepEqual(a.Labels, b.Labels) &&
		equality.Semantic.DeepEqual(a.Annotations, b.Annotations)
}
