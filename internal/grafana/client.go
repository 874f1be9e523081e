package grafana

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"dashsync/pkg/logging"
	strs "dashsync/pkg/strings"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultSearchPage = 1000
	maxSearchPages    = 100
	maxResponseBytes  = 16 << 20
	saveMessage       = "Synchronized by dashsync"
)

// Config holds Grafana client configuration.
type Config struct {
	// URL is the Grafana base URL, e.g. https://grafana.example.com.
	URL string

	// APIKey is an API key or service account token sent as a bearer token.
	APIKey string

	// Username and Password enable basic auth when APIKey is empty.
	Username string
	Password string

	// FolderUID places created and updated dashboards in a folder.
	FolderUID string

	Timeout            time.Duration
	InsecureSkipVerify bool
	UserAgent          string
}

// HTTPClient implements Client against the Grafana HTTP API.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	username   string
	password   string
	folderUID  string
	userAgent  string
}

var _ Client = (*HTTPClient)(nil)

// NewClient creates a Grafana API client.
func NewClient(cfg Config) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("grafana URL is required")
	}
	baseURL, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid grafana URL %q: %w", cfg.URL, err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid grafana URL %q: scheme must be http or https", cfg.URL)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed Grafana instances
	}

	var rt http.RoundTripper = transport
	if cfg.APIKey != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "dashsync"
	}

	c := &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
		folderUID: cfg.FolderUID,
		userAgent: userAgent,
	}
	if cfg.APIKey == "" {
		c.username = cfg.Username
		c.password = cfg.Password
	}
	return c, nil
}

type saveRequest struct {
	Dashboard map[string]interface{} `json:"dashboard"`
	FolderUID string                 `json:"folderUid,omitempty"`
	Overwrite bool                   `json:"overwrite"`
	Message   string                 `json:"message,omitempty"`
}

// Create stores a new dashboard. Grafana reports an existing uid with 412,
// which surfaces as a conflict.
func (c *HTTPClient) Create(ctx context.Context, uid string, model map[string]interface{}) (*DashboardRef, error) {
	return c.save(ctx, "create", uid, model, false)
}

// Update overwrites the dashboard stored under uid.
func (c *HTTPClient) Update(ctx context.Context, uid string, model map[string]interface{}) (*DashboardRef, error) {
	return c.save(ctx, "update", uid, model, true)
}

func (c *HTTPClient) save(ctx context.Context, operation, uid string, model map[string]interface{}, overwrite bool) (*DashboardRef, error) {
	body := saveRequest{
		Dashboard: model,
		FolderUID: c.folderUID,
		Overwrite: overwrite,
		Message:   saveMessage,
	}

	var ref DashboardRef
	if err := c.do(ctx, operation, uid, http.MethodPost, "/api/dashboards/db", nil, body, &ref); err != nil {
		return nil, err
	}
	if ref.UID == "" {
		ref.UID = uid
	}

	logging.Debug("Grafana", "Saved dashboard %s (id=%d, version=%d)", ref.UID, ref.ID, ref.Version)
	return &ref, nil
}

// Delete removes the dashboard stored under uid.
func (c *HTTPClient) Delete(ctx context.Context, uid string) error {
	if err := c.do(ctx, "delete", uid, http.MethodDelete, "/api/dashboards/uid/"+uid, nil, nil, nil); err != nil {
		return err
	}
	logging.Debug("Grafana", "Deleted dashboard %s", uid)
	return nil
}

// Get fetches the dashboard stored under uid.
func (c *HTTPClient) Get(ctx context.Context, uid string) (*Dashboard, error) {
	var dashboard Dashboard
	if err := c.do(ctx, "get", uid, http.MethodGet, "/api/dashboards/uid/"+uid, nil, nil, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

// Search lists dashboards matching query, following pagination.
func (c *HTTPClient) Search(ctx context.Context, query SearchQuery) ([]SearchHit, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultSearchPage
	}

	var hits []SearchHit
	for page := 1; page <= maxSearchPages; page++ {
		params := url.Values{}
		params.Set("type", "dash-db")
		params.Set("limit", strconv.Itoa(limit))
		params.Set("page", strconv.Itoa(page))
		for _, tag := range query.Tags {
			params.Add("tag", tag)
		}
		if query.Query != "" {
			params.Set("query", query.Query)
		}

		var batch []SearchHit
		if err := c.do(ctx, "search", "", http.MethodGet, "/api/search", params, nil, &batch); err != nil {
			return nil, err
		}
		hits = append(hits, batch...)
		if len(batch) < limit {
			return hits, nil
		}
	}

	logging.Warn("Grafana", "Search stopped after %d pages; results may be incomplete", maxSearchPages)
	return hits, nil
}

// Ping checks that Grafana is reachable and healthy.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, "health", "", http.MethodGet, "/api/health", nil, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, operation, uid, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &APIError{Kind: KindFatal, Operation: operation, UID: uid, Message: "failed to encode request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &APIError{Kind: KindFatal, Operation: operation, UID: uid, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(operation, uid, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(operation, uid, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Kind:       KindForStatus(resp.StatusCode),
			Operation:  operation,
			UID:        uid,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Kind: KindFatal, Operation: operation, UID: uid, StatusCode: resp.StatusCode, Message: "failed to decode response", Err: err}
	}
	return nil
}

// errorMessage extracts Grafana's error message from a response body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		if payload.Status != "" {
			return payload.Message + " (" + payload.Status + ")"
		}
		return payload.Message
	}

	return strs.Truncate(string(body), strs.MaxResponseSnippetLen)
}
