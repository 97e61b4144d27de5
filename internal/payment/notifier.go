// Package payment submits the frozen checkout snapshot as an order and
// drives the two payment paths to their terminal states.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/InfernusReal/beddingstore/internal/domain"
)

const notifierTimeout = 8 * time.Second

// Notifier delivers the merchant order notification. Only the
// pay-on-delivery path notifies at submission; the transfer path stays
// silent until funds are verified out of band.
type Notifier struct {
	baseURL string
	http    *http.Client
}

// NewNotifier constructs a notifier for the given base URL.
func NewNotifier(baseURL string, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: notifierTimeout,
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifierOption customises notifier construction.
type NotifierOption func(*Notifier)

// WithNotifierHTTPClient overrides the underlying HTTP client.
func WithNotifierHTTPClient(httpClient *http.Client) NotifierOption {
	return func(n *Notifier) {
		if httpClient != nil {
			n.http = httpClient
		}
	}
}

type notificationProduct struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"image_url,omitempty"`
}

type notificationPayload struct {
	Name       string                `json:"name"`
	Phone      string                `json:"phone"`
	Email      string                `json:"email"`
	Address    string                `json:"address"`
	Products   []notificationProduct `json:"products"`
	TotalPrice int64                 `json:"totalPrice"`
	Purpose    string                `json:"purpose"`
}

// NotifyOrder posts the order notification to the merchant mail relay.
func (n *Notifier) NotifyOrder(ctx context.Context, buyer domain.BuyerDetails, cart domain.Cart, total int64) error {
	endpoint, err := url.JoinPath(n.baseURL, "send-email")
	if err != nil {
		return err
	}

	products := make([]notificationProduct, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		products = append(products, notificationProduct{
			ProductID: line.ProductID,
			Name:      line.ProductName,
			Slug:      line.ProductSlug,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
			ImageURL:  line.ImageURL,
		})
	}
	payload, err := json.Marshal(notificationPayload{
		Name:       buyer.Name,
		Phone:      buyer.Phone,
		Email:      buyer.Email,
		Address:    buyer.Address,
		Products:   products,
		TotalPrice: total,
		Purpose:    "order",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("payment: notification status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
