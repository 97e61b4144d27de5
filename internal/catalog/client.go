// Package catalog is the read-only client for the product catalog service,
// used to enrich cart lines with current product imagery and pricing.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/InfernusReal/beddingstore/internal/domain"
)

const defaultTimeout = 8 * time.Second

// ErrProductNotFound is returned when no product exists for the slug.
var ErrProductNotFound = errors.New("catalog: product not found")

// Client fetches product records from the catalog service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a catalog client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientOption customises client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

type productPayload struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Price    int64  `json:"price"`
	ImageURL string `json:"image_url"`
}

// BySlug fetches a single product by its URL slug.
func (c *Client) BySlug(ctx context.Context, slug string) (domain.Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Product{}, ErrProductNotFound
	}
	endpoint, err := url.JoinPath(c.baseURL, "products", "slug", slug)
	if err != nil {
		return domain.Product{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Product{}, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.Product{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.Product{}, ErrProductNotFound
	}
	if resp.StatusCode >= 400 {
		return domain.Product{}, fmt.Errorf("catalog: status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var payload productPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:       payload.ID,
		Name:     payload.Name,
		Slug:     payload.Slug,
		Price:    payload.Price,
		ImageURL: payload.ImageURL,
	}, nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
