package grafana

import "context"

// Client is the backend sync client. Implementations must be safe for
// concurrent use; the reconciler issues calls for different dashboards in parallel.
type Client interface {
	// Create stores a new dashboard under uid. It fails with a conflict if a
	// dashboard with that uid already exists.
	Create(ctx context.Context, uid string, model map[string]interface{}) (*DashboardRef, error)

	// Update overwrites the dashboard identified by uid.
	Update(ctx context.Context, uid string, model map[string]interface{}) (*DashboardRef, error)

	// Delete removes the dashboard identified by uid.
	Delete(ctx context.Context, uid string) error

	// Get fetches a dashboard and its metadata.
	Get(ctx context.Context, uid string) (*Dashboard, error)

	// Search lists dashboards matching query.
	Search(ctx context.Context, query SearchQuery) ([]SearchHit, error)
}

// DashboardRef is returned by Grafana after a dashboard was saved.
type DashboardRef struct {
	ID      int64  `json:"id"`
	UID     string `json:"uid"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	Version int    `json:"version"`
	Slug    string `json:"slug"`
}

// Dashboard is a stored dashboard model with its metadata.
type Dashboard struct {
	Model map[string]interface{} `json:"dashboard"`
	Meta  DashboardMeta          `json:"meta"`
}

// DashboardMeta holds the subset of Grafana's dashboard metadata dashsync uses.
type DashboardMeta struct {
	Slug      string `json:"slug"`
	URL       string `json:"url"`
	FolderUID string `json:"folderUid"`
	Version   int    `json:"version"`
}

// SearchQuery selects dashboards. Empty fields are not sent.
type SearchQuery struct {
	Tags  []string
	Query string
	Limit int
}

// SearchHit is one result of a dashboard search.
type SearchHit struct {
	ID        int64    `json:"id"`
	UID       string   `json:"uid"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Type      string   `json:"type"`
	Tags      []string `json:"tags"`
	FolderUID string   `json:"folderUid"`
}
