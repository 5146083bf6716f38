// Package grafana provides a client for the parts of Grafana's HTTP API used
// to wire a freshly started monitoring stack: health and data sources.
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrUnexpectedStatus is wrapped by errors for non-success API responses.
var ErrUnexpectedStatus = errors.New("unexpected grafana response")

// Client talks to Grafana's HTTP API with basic authentication.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds Grafana client configuration.
type Config struct {
	BaseURL  string // e.g. "http://localhost:3000"
	User     string // defaults to "admin"
	Password string
	Timeout  time.Duration
}

// NewClient creates a new Grafana client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	user := cfg.User
	if user == "" {
		user = "admin"
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		user:     user,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "grafana"),
	}
}

// =============================================================================
// Data Source Types
// =============================================================================

// DataSource is a Grafana data source definition.
type DataSource struct {
	ID        int64  `json:"id,omitempty"`
	UID       string `json:"uid,omitempty"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	Access    string `json:"access"`
	IsDefault bool   `json:"isDefault"`
}

// PrometheusDataSource returns the proxy-access Prometheus data source at url.
func PrometheusDataSource(name, url string) DataSource {
	return DataSource{
		Name:      name,
		Type:      "prometheus",
		URL:       url,
		Access:    "proxy",
		IsDefault: true,
	}
}

// dataSourceResponse is the body Grafana returns on create and update.
type dataSourceResponse struct {
	ID         int64      `json:"id"`
	Message    string     `json:"message"`
	DataSource DataSource `json:"datasource"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Database string `json:"database"`
	Version  string `json:"version"`
}

// =============================================================================
// Operations
// =============================================================================

// Health reports whether Grafana is up and its database is usable.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, http.StatusOK, &health); err != nil {
		return nil, err
	}
	if health.Database != "ok" {
		return &health, fmt.Errorf("%w: database %q", ErrUnexpectedStatus, health.Database)
	}
	return &health, nil
}

// GetDataSourceByName returns the named data source, or nil if none exists.
func (c *Client) GetDataSourceByName(ctx context.Context, name string) (*DataSource, error) {
	var ds DataSource
	err := c.do(ctx, http.MethodGet, "/api/datasources/name/"+url.PathEscape(name), nil, http.StatusOK, &ds)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ds, nil
}

// CreateDataSource adds a new data source.
func (c *Client) CreateDataSource(ctx context.Context, ds DataSource) (*DataSource, error) {
	var result dataSourceResponse
	if err := c.do(ctx, http.MethodPost, "/api/datasources", ds, http.StatusOK, &result); err != nil {
		return nil, err
	}
	result.DataSource.ID = result.ID
	return &result.DataSource, nil
}

// UpdateDataSource replaces the data source with the given id.
func (c *Client) UpdateDataSource(ctx context.Context, id int64, ds DataSource) (*DataSource, error) {
	ds.ID = id
	var result dataSourceResponse
	path := "/api/datasources/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPut, path, ds, http.StatusOK, &result); err != nil {
		return nil, err
	}
	result.DataSource.ID = result.ID
	return &result.DataSource, nil
}

// EnsureDataSource creates the data source or updates the existing one with
// the same name, so repeated deployments converge on one entry.
func (c *Client) EnsureDataSource(ctx context.Context, ds DataSource) (int64, error) {
	existing, err := c.GetDataSourceByName(ctx, ds.Name)
	if err != nil {
		return 0, fmt.Errorf("check existing data source: %w", err)
	}

	if existing != nil {
		c.logger.Info("updating existing data source", "name", ds.Name, "id", existing.ID)
		updated, err := c.UpdateDataSource(ctx, existing.ID, ds)
		if err != nil {
			return 0, fmt.Errorf("update data source: %w", err)
		}
		return updated.ID, nil
	}

	c.logger.Info("creating data source", "name", ds.Name, "type", ds.Type)
	created, err := c.CreateDataSource(ctx, ds)
	if err != nil {
		return 0, fmt.Errorf("create data source: %w", err)
	}
	return created.ID, nil
}

// =============================================================================
// Helper Methods
// =============================================================================

// APIError carries the status and body of a failed API call.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrUnexpectedStatus
}

func (c *Client) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
