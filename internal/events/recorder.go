package events

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"dashsync/pkg/logging"
	strs "dashsync/pkg/strings"
)

const (
	component          = "dashsync"
	defaultQueueSize   = 256
	createEventTimeout = 10 * time.Second
)

// Recorder records sync outcomes on source ConfigMaps. Implementations must
// not block the caller.
type Recorder interface {
	Event(ref ObjectReference, reason EventReason, data EventData)
}

// NopRecorder discards all events.
type NopRecorder struct{}

// Event implements Recorder.
func (NopRecorder) Event(ObjectReference, EventReason, EventData) {}

// LogRecorder writes events to the log. It is used when sources are read
// from the filesystem and there is no object to attach events to.
type LogRecorder struct {
	templates *MessageTemplateEngine
}

// NewLogRecorder creates a LogRecorder with the default templates.
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{templates: NewMessageTemplateEngine()}
}

// Event implements Recorder.
func (r *LogRecorder) Event(ref ObjectReference, reason EventReason, data EventData) {
	data.Name = ref.Name
	data.Namespace = ref.Namespace
	message := r.templates.Render(reason, data)

	if getEventType(reason) == EventTypeWarning {
		logging.Warn("event", "Event for %s/%s: %s - %s", ref.Namespace, ref.Name, reason, message)
		return
	}
	logging.Info("event", "Event for %s/%s: %s - %s", ref.Namespace, ref.Name, reason, message)
}

// KubernetesRecorder creates core/v1 Events through a controller-runtime
// client. Events are queued and created by Run; when the queue is full new
// events are dropped.
type KubernetesRecorder struct {
	client    client.Client
	templates *MessageTemplateEngine
	queue     chan *corev1.Event
	now       func() time.Time
}

// NewKubernetesRecorder creates a KubernetesRecorder. Run must be started for
// events to be written.
func NewKubernetesRecorder(c client.Client) *KubernetesRecorder {
	return &KubernetesRecorder{
		client:    c,
		templates: NewMessageTemplateEngine(),
		queue:     make(chan *corev1.Event, defaultQueueSize),
		now:       time.Now,
	}
}

// Templates returns the engine used to render messages.
func (r *KubernetesRecorder) Templates() *MessageTemplateEngine {
	return r.templates
}

// Event implements Recorder.
func (r *KubernetesRecorder) Event(ref ObjectReference, reason EventReason, data EventData) {
	data.Name = ref.Name
	data.Namespace = ref.Namespace

	message := r.templates.Render(reason, data)
	eventType := string(getEventType(reason))

	logging.Debug("events", "Generating ConfigMap event: reason=%s, message=%s, type=%s",
		string(reason), message, eventType)

	event := r.newEvent(ref, string(reason), message, eventType)
	select {
	case r.queue <- event:
	default:
		logging.Warn("events", "Event queue full, dropping %s event for %s/%s", reason, ref.Namespace, ref.Name)
	}
}

func (r *KubernetesRecorder) newEvent(ref ObjectReference, reason, message, eventType string) *corev1.Event {
	now := metav1.NewTime(r.now())
	return &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: ref.Name + "-",
			Namespace:    ref.Namespace,
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: "v1",
			Kind:       "ConfigMap",
			Name:       ref.Name,
			Namespace:  ref.Namespace,
			UID:        ref.UID,
		},
		Reason:         reason,
		Message:        strs.Truncate(message, strs.MaxEventMessageLen),
		Type:           eventType,
		Source:         corev1.EventSource{Component: component},
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
	}
}

// Run writes queued events until ctx is cancelled.
func (r *KubernetesRecorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-r.queue:
			r.create(ctx, event)
		}
	}
}

func (r *KubernetesRecorder) create(ctx context.Context, event *corev1.Event) {
	ctx, cancel := context.WithTimeout(ctx, createEventTimeout)
	defer cancel()

	if err := r.client.Create(ctx, event); err != nil {
		logging.Warn("events", "Failed to create Kubernetes Event %s for %s/%s: %v",
			event.Reason, event.InvolvedObject.Namespace, event.InvolvedObject.Name, err)
	}
}
