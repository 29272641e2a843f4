package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/httpclient"
)

const serviceName = "catalog"

// Page is one page of the catalog export.
type Page struct {
	Items      []domain.CatalogProduct `json:"items"`
	Total      int                     `json:"total"`
	TotalPages int                     `json:"totalPages"`
}

// Config configures the catalog client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client reads the catalog export API through a circuit breaker.
type Client struct {
	baseURL string
	http    *httpclient.CircuitBreakerClient
	logger  *slog.Logger
}

// NewClient creates a catalog client. A zero timeout uses 10s.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: httpclient.NewCircuitBreakerClient(
			httpclient.New(httpCfg),
			httpclient.DefaultCircuitBreakerConfig(serviceName),
			logger,
		),
		logger: logger,
	}
}

// ListPublished fetches one page of published products. Pages start at 1.
func (c *Client) ListPublished(ctx context.Context, page, perPage int) (*Page, error) {
	q := url.Values{}
	q.Set("status", string(domain.StatusPublished))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	resp, err := c.http.Get(ctx, c.baseURL+"/api/v1/products?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("list published products page %d: %w", page, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list published products page %d: %w", page, httpclient.ParseResponseError(resp, serviceName))
	}
	defer func() { _ = resp.Body.Close() }()

	var out Page
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode catalog page %d: %w", page, err)
	}
	if out.Items == nil {
		out.Items = []domain.CatalogProduct{}
	}
	return &out, nil
}

// Ping checks the catalog liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.baseURL+"/health/live")
	if err != nil {
		return fmt.Errorf("catalog liveness: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog liveness: %w", httpclient.ParseResponseError(resp, serviceName))
	}
	_ = resp.Body.Close()
	return nil
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.http.State()
}
