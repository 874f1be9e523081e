package grafana

import (
	"context"

	"dashsync/pkg/logging"
)

// DryRunClient logs writes instead of performing them. Reads go to the
// wrapped client so the reconciler observes the real backend state.
type DryRunClient struct {
	inner Client
}

var _ Client = (*DryRunClient)(nil)

// NewDryRunClient wraps inner.
func NewDryRunClient(inner Client) *DryRunClient {
	return &DryRunClient{inner: inner}
}

// Create reports a conflict when the dashboard already exists, mirroring the
// real backend, and otherwise only logs the creation.
func (c *DryRunClient) Create(ctx context.Context, uid string, model map[string]interface{}) (*DashboardRef, error) {
	_, err := c.inner.Get(ctx, uid)
	switch {
	case err == nil:
		return nil, &APIError{Kind: KindConflict, Operation: "create", UID: uid, Message: "dashboard already exists"}
	case !IsNotFound(err):
		return nil, err
	}

	logging.Info("Grafana", "[dry-run] Would create dashboard %s %q", uid, title(model))
	return &DashboardRef{UID: uid, Status: "dry-run"}, nil
}

// Update only logs the update.
func (c *DryRunClient) Update(_ context.Context, uid string, model map[string]interface{}) (*DashboardRef, error) {
	logging.Info("Grafana", "[dry-run] Would update dashboard %s %q", uid, title(model))
	return &DashboardRef{UID: uid, Status: "dry-run"}, nil
}

// Delete only logs the deletion.
func (c *DryRunClient) Delete(_ context.Context, uid string) error {
	logging.Info("Grafana", "[dry-run] Would delete dashboard %s", uid)
	return nil
}

// Get delegates to the wrapped client.
func (c *DryRunClient) Get(ctx context.Context, uid string) (*Dashboard, error) {
	return c.inner.Get(ctx, uid)
}

// Search delegates to the wrapped client.
func (c *DryRunClient) Search(ctx context.Context, query SearchQuery) ([]SearchHit, error) {
	return c.inner.Search(ctx, query)
}

// Ping checks the wrapped client's health when it supports it.
func (c *DryRunClient) Ping(ctx context.Context) error {
	if p, ok := c.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func title(model map[string]interface{}) string {
	t, _ := model["title"].(string)
	return t
}
