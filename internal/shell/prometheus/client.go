// Package prometheus checks the monitoring stack's Prometheus server and
// exports the outcome of a deployment run in the text exposition format.
package prometheus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
)

// Client queries a Prometheus server's HTTP API.
type Client struct {
	address string
	api     v1.API
	timeout time.Duration
	logger  *slog.Logger
}

// Config holds Prometheus client configuration.
type Config struct {
	Address string // e.g. "http://localhost:9090"
	Timeout time.Duration
}

// NewClient creates a Prometheus API client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	c, err := api.NewClient(api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client for %s: %w", cfg.Address, err)
	}

	return &Client{
		address: cfg.Address,
		api:     v1.NewAPI(c),
		timeout: timeout,
		logger:  logger.With("component", "prometheus"),
	}, nil
}

// Ready confirms the server answers its build-info endpoint and returns the
// reported version.
func (c *Client) Ready(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	info, err := c.api.Buildinfo(ctx)
	if err != nil {
		return "", fmt.Errorf("prometheus at %s not ready: %w", c.address, err)
	}
	c.logger.Debug("prometheus ready", "version", info.Version)
	return info.Version, nil
}
