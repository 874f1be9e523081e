package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	corelisters "k8s.io/client-go/listers/core/v1"
	toolscache "k8s.io/client-go/tools/cache"

	"dashsync/pkg/logging"
)

// DefaultRelistBackoff bounds the explicit list issued after a watch interruption.
var DefaultRelistBackoff = wait.Backoff{
	Duration: time.Second,
	Factor:   2,
	Jitter:   0.1,
	Steps:    5,
	Cap:      30 * time.Second,
}

// KubernetesWatcherOptions configures a KubernetesWatcher.
type KubernetesWatcherOptions struct {
	// Namespace restricts the watch; empty watches all namespaces.
	Namespace string

	// Selector filters ConfigMaps by label. Nil selects everything.
	Selector labels.Selector

	// ResyncPeriod is the interval between periodic Resynced events. Zero disables them.
	ResyncPeriod time.Duration

	// RelistBackoff bounds retries of the list issued after a watch interruption.
	RelistBackoff wait.Backoff
}

// KubernetesWatcher implements Watcher on top of a client-go shared informer.
//
// The informer list/watch is scoped by namespace and label selector. Watch
// interruptions reported through the informer's watch error handler trigger an
// explicit list against the API server that is delivered as a Resynced event.
type KubernetesWatcher struct {
	mu sync.Mutex

	client        kubernetes.Interface
	namespace     string
	selector      labels.Selector
	resyncPeriod  time.Duration
	relistBackoff wait.Backoff

	factory informers.SharedInformerFactory
	lister  corelisters.ConfigMapLister

	// ctx and events are fixed for the lifetime of a Start call.
	ctx    context.Context
	cancel context.CancelFunc
	events chan<- Event

	// relistCh coalesces pending relist requests.
	relistCh chan error

	running bool
	done    chan struct{}
}

// NewKubernetesWatcher creates a watcher for labeled ConfigMaps.
func NewKubernetesWatcher(client kubernetes.Interface, opts KubernetesWatcherOptions) *KubernetesWatcher {
	selector := opts.Selector
	if selector == nil {
		selector = labels.Everything()
	}
	backoff := opts.RelistBackoff
	if backoff.Steps == 0 {
		backoff = DefaultRelistBackoff
	}

	return &KubernetesWatcher{
		client:        client,
		namespace:     opts.Namespace,
		selector:      selector,
		resyncPeriod:  opts.ResyncPeriod,
		relistBackoff: backoff,
		relistCh:      make(chan error, 1),
	}
}

// Start begins watching and blocks until the informer cache has synced.
func (w *KubernetesWatcher) Start(ctx context.Context, events chan<- Event) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.events = events
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	selector := w.selector.String()
	factory := informers.NewSharedInformerFactoryWithOptions(w.client, 0,
		informers.WithNamespace(w.namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.LabelSelector = selector
		}),
	)
	configMaps := factory.Core().V1().ConfigMaps()
	informer := configMaps.Informer()

	// Must be registered before the informer runs.
	if err := informer.SetWatchErrorHandler(w.onWatchError); err != nil {
		w.abortStart()
		return fmt.Errorf("failed to set watch error handler: %w", err)
	}

	_, err := informer.AddEventHandler(toolscache.ResourceEventHandlerFuncs{
		AddFunc:    w.onAdd,
		UpdateFunc: w.onUpdate,
		DeleteFunc: w.onDelete,
	})
	if err != nil {
		w.abortStart()
		return fmt.Errorf("failed to add ConfigMap event handler: %w", err)
	}

	w.mu.Lock()
	w.factory = factory
	w.lister = configMaps.Lister()
	w.mu.Unlock()

	factory.Start(w.ctx.Done())

	if !toolscache.WaitForCacheSync(w.ctx.Done(), informer.HasSynced) {
		w.abortStart()
		return fmt.Errorf("failed to sync ConfigMap cache for namespace %q selector %q", w.namespace, selector)
	}

	go w.resyncLoop()

	logging.Info("Watcher", "Watching ConfigMaps in %s with selector %q", namespaceDescription(w.namespace), selector)
	return nil
}

// abortStart undoes a partially completed Start.
func (w *KubernetesWatcher) abortStart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancel()
	if w.factory != nil {
		w.factory.Shutdown()
	}
	w.running = false
	close(w.done)
}

// Stop cancels the watch and waits for informer goroutines to exit.
func (w *KubernetesWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	factory := w.factory
	done := w.done
	w.mu.Unlock()

	if factory != nil {
		factory.Shutdown()
	}
	<-done

	logging.Info("Watcher", "Stopped ConfigMap watcher")
	return nil
}

func (w *KubernetesWatcher) resyncLoop() {
	defer close(w.done)

	w.emitResync(ResyncInitial, w.listFromCache)

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

		case <-tick:
			w.emitResync(ResyncPeriodic, w.listFromCache)

		case err := <-w.relistCh:
			logging.Info("Watcher", "Relisting ConfigMaps after watch interruption: %v", err)
			w.emitResync(ResyncRelist, w.relist)
		}
	}
}

// emitResync stamps the event with the time the listing started, so the
// receiver can tell which sources were observed after the snapshot.
func (w *KubernetesWatcher) emitResync(reason ResyncReason, list func() ([]*DashboardSource, error)) {
	listedAt := time.Now()
	sources, err := list()
	if err != nil {
		if w.ctx.Err() == nil {
			logging.Error("Watcher", err, "Failed to list ConfigMaps for %s resync", reason)
		}
		return
	}

	logging.Debug("Watcher", "Emitting %s resync with %d sources", reason, len(sources))
	send(w.ctx, w.events, Event{Kind: EventResynced, Sources: sources, Reason: reason, Timestamp: listedAt})
}

func (w *KubernetesWatcher) listFromCache() ([]*DashboardSource, error) {
	cms, err := w.lister.List(w.selector)
	if err != nil {
		return nil, err
	}
	return w.toSources(cms), nil
}

// relist lists ConfigMaps from the API server, retrying with backoff.
func (w *KubernetesWatcher) relist() ([]*DashboardSource, error) {
	var sources []*DashboardSource
	opts := metav1.ListOptions{LabelSelector: w.selector.String()}

	err := wait.ExponentialBackoffWithContext(w.ctx, w.relistBackoff, func(ctx context.Context) (bool, error) {
		list, err := w.client.CoreV1().ConfigMaps(w.namespace).List(ctx, opts)
		if err != nil {
			logging.Warn("Watcher", "Relist failed, will retry: %v", err)
			return false, nil
		}

		cms := make([]*corev1.ConfigMap, 0, len(list.Items))
		for i := range list.Items {
			cms = append(cms, &list.Items[i])
		}
		sources = w.toSources(cms)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("relist ConfigMaps: %w", err)
	}
	return sources, nil
}

func (w *KubernetesWatcher) toSources(cms []*corev1.ConfigMap) []*DashboardSource {
	sources := make([]*DashboardSource, 0, len(cms))
	for _, cm := range cms {
		if !w.matches(cm) {
			continue
		}
		sources = append(sources, FromConfigMap(cm))
	}
	sortSources(sources)
	return sources
}

func (w *KubernetesWatcher) matches(cm *corev1.ConfigMap) bool {
	if w.namespace != "" && cm.Namespace != w.namespace {
		return false
	}
	return w.selector.Matches(labels.Set(cm.Labels))
}

func (w *KubernetesWatcher) onWatchError(_ *toolscache.Reflector, err error) {
	if errors.Is(err, io.EOF) {
		// Watch closed by the server; the reflector resumes from its last resource version.
		return
	}

	logging.Warn("Watcher", "ConfigMap watch interrupted: %v", err)
	select {
	case w.relistCh <- err:
	default:
		// A relist is already pending.
	}
}

func (w *KubernetesWatcher) onAdd(obj interface{}) {
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok || !w.matches(cm) {
		return
	}
	src := FromConfigMap(cm)
	send(w.ctx, w.events, Event{Kind: EventAdded, Key: src.Key(), Source: src})
}

func (w *KubernetesWatcher) onUpdate(oldObj, newObj interface{}) {
	oldCM, ok := oldObj.(*corev1.ConfigMap)
	if !ok {
		return
	}
	newCM, ok := newObj.(*corev1.ConfigMap)
	if !ok {
		return
	}
	if oldCM.ResourceVersion == newCM.ResourceVersion {
		return
	}

	wasMatching, isMatching := w.matches(oldCM), w.matches(newCM)
	src := FromConfigMap(newCM)

	switch {
	case isMatching && wasMatching:
		send(w.ctx, w.events, Event{Kind: EventModified, Key: src.Key(), Source: src})
	case isMatching:
		send(w.ctx, w.events, Event{Kind: EventAdded, Key: src.Key(), Source: src})
	case wasMatching:
		send(w.ctx, w.events, Event{Kind: EventDeleted, Key: src.Key(), Source: src})
	}
}

func (w *KubernetesWatcher) onDelete(obj interface{}) {
	if tombstone, ok := obj.(toolscache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok {
		return
	}
	src := FromConfigMap(cm)
	send(w.ctx, w.events, Event{Kind: EventDeleted, Key: src.Key(), Source: src})
}

func namespaceDescription(namespace string) string {
	if namespace == "" {
		return "all namespaces"
	}
	return "namespace " + namespace
}
