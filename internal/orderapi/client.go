// Package orderapi is the REST client for the external Order API, the system
// of record for cart temp rows and submitted orders.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/InfernusReal/beddingstore/internal/domain"
)

const (
	defaultTimeout    = 8 * time.Second
	idempotencyHeader = "Idempotency-Key"
)

// ErrMissingOrderID is returned when an operation requires an order id and
// none was provided.
var ErrMissingOrderID = errors.New("orderapi: missing order id")

// Client issues order calls against the external Order API.
type Client struct {
	baseURL string
	http    *http.Client
	newKey  func() string
}

// NewClient constructs an Order API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		newKey: func() string { return uuid.NewString() },
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

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// WithIdempotencyKeyFunc overrides idempotency key generation. Test hook.
func WithIdempotencyKeyFunc(fn func() string) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.newKey = fn
		}
	}
}

// CreateOrderRequest is the POST /orders payload. Every order row carries the
// buyer block even for temp cart rows (the API has no separate cart table;
// temp rows use placeholder buyer fields).
type CreateOrderRequest struct {
	BuyerName     string             `json:"buyer_name"`
	BuyerEmail    string             `json:"buyer_email"`
	BuyerPhone    string             `json:"buyer_phone"`
	BuyerAddress  string             `json:"buyer_address"`
	PaymentMethod string             `json:"payment_method"`
	PaymentID     string             `json:"payment_id"`
	TotalAmount   int64              `json:"total_amount"`
	Status        domain.OrderStatus `json:"status"`
	UserSession   string             `json:"user_session,omitempty"`
	Items         []domain.OrderItem `json:"items"`
}

// OrderRow mirrors one order row returned by GET /orders/user/{sessionId}.
type OrderRow struct {
	ID            string             `json:"id"`
	UserSession   string             `json:"user_session"`
	Status        string             `json:"status"`
	PaymentMethod string             `json:"payment_method"`
	TotalAmount   int64              `json:"total_amount"`
	CreatedAt     string             `json:"created_at"`
	Items         []domain.OrderItem `json:"items"`
}

// ToPendingOrder converts the wire row into the domain representation.
func (r OrderRow) ToPendingOrder() domain.PendingOrder {
	return domain.PendingOrder{
		ID:            strings.TrimSpace(r.ID),
		SessionID:     strings.TrimSpace(r.UserSession),
		Status:        domain.OrderStatus(strings.ToLower(strings.TrimSpace(r.Status))),
		PaymentMethod: strings.TrimSpace(r.PaymentMethod),
		Items:         r.Items,
		TotalAmount:   r.TotalAmount,
		CreatedAt:     parseTime(r.CreatedAt),
	}
}

// CreateOrder submits a new order row and returns the created order id.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "orders")
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(idempotencyHeader, c.newKey())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("orderapi: create status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var created struct {
		OrderID json.Number `json:"orderId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	id := strings.TrimSpace(created.OrderID.String())
	if id == "" {
		return "", errors.New("orderapi: create response missing orderId")
	}
	return id, nil
}

// ListBySession fetches every order row attributed to the session id, in
// server response order.
func (c *Client) ListBySession(ctx context.Context, sessionID string) ([]OrderRow, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("orderapi: missing session id")
	}
	endpoint, err := url.JoinPath(c.baseURL, "orders", "user", sessionID)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("orderapi: list status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var rows []OrderRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteOrder removes an order row.
func (c *Client) DeleteOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ErrMissingOrderID
	}
	endpoint, err := url.JoinPath(c.baseURL, "orders", orderID)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("orderapi: delete status %d: %s", resp.StatusCode, drainError(resp.Body))
	}
	return nil
}

// OrderStatus fetches the current status of a single order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", ErrMissingOrderID
	}
	endpoint, err := url.JoinPath(c.baseURL, "orders", orderID, "status")
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("orderapi: status status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return domain.OrderStatus(strings.ToLower(strings.TrimSpace(payload.Status))), nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}

func parseTime(val string) time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts
		}
	}
	return time.Time{}
}
