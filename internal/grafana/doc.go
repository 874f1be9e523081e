// Package grafana is the backend sync client for Grafana's dashboard API.
//
// HTTPClient talks to /api/dashboards and /api/search using either a bearer
// token (API key or service account token) or basic auth. Every failure is
// returned as an *APIError whose Kind tells the caller whether to retry
// (Transient), fall back to another operation (Conflict, NotFound), or give up
// until the input changes (Fatal).
//
// DryRunClient wraps another Client and only logs writes.
package grafana
