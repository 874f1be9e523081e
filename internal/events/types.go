package events

import (
	"k8s.io/apimachinery/pkg/types"
)

// EventType represents the type/severity of a Kubernetes Event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

const (
	// ReasonDashboardCreated indicates a dashboard was created in Grafana.
	ReasonDashboardCreated EventReason = "DashboardCreated"

	// ReasonDashboardUpdated indicates a dashboard was updated in Grafana.
	ReasonDashboardUpdated EventReason = "DashboardUpdated"

	// ReasonDashboardDeleted indicates a dashboard was removed from Grafana.
	ReasonDashboardDeleted EventReason = "DashboardDeleted"

	// ReasonDashboardInvalid indicates a payload entry could not be parsed.
	ReasonDashboardInvalid EventReason = "DashboardInvalid"

	// ReasonDashboardSyncFailed indicates a Grafana call failed for good,
	// either because retries were exhausted or the error was fatal.
	ReasonDashboardSyncFailed EventReason = "DashboardSyncFailed"
)

// EventData holds contextual information for event message templating.
type EventData struct {
	// Name and Namespace identify the source ConfigMap.
	Name      string
	Namespace string

	// Title is the dashboard title.
	Title string

	// Key is the dashboard identity key, also its Grafana uid.
	Key string

	// PayloadKey is the ConfigMap data key the dashboard came from.
	PayloadKey string

	// Operation is the backend operation ("create", "update", "delete").
	Operation string

	// Error contains error information for failure events.
	Error string

	// Attempts is the number of attempts made before giving up.
	Attempts int
}

// ObjectReference identifies the ConfigMap an event is recorded on.
type ObjectReference struct {
	Name      string
	Namespace string

	// UID is the ConfigMap UID when known.
	UID types.UID
}

// getEventType returns the appropriate EventType for a given EventReason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonDashboardInvalid, ReasonDashboardSyncFailed:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
