package domain

import (
	"time"
)

// OrderStatus enumerates the lifecycle states of a server-persisted order row.
type OrderStatus string

const (
	// OrderStatusTemp marks a row sitting in the cart, not yet checked out.
	OrderStatusTemp OrderStatus = "temp"
	// OrderStatusPending marks a submitted order awaiting payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed marks a finalized order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCancelled marks an order cancelled by the merchant.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
// observable by this client.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

// PaymentMethod enumerates the two supported payment paths.
type PaymentMethod string

const (
	// PaymentMethodPayOnDelivery settles in cash at delivery; the order is
	// confirmed immediately on submission.
	PaymentMethodPayOnDelivery PaymentMethod = "cod"
	// PaymentMethodPayThenConfirm requires an out-of-band transfer verified
	// manually by the merchant before the order is confirmed.
	PaymentMethodPayThenConfirm PaymentMethod = "transfer"
)

// Valid reports whether the method is one of the supported payment paths.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodPayOnDelivery || m == PaymentMethodPayThenConfirm
}

// Product is the read-only catalog record referenced by cart lines.
// Prices are whole rupees.
type Product struct {
	ID       int64
	Name     string
	Slug     string
	Price    int64
	ImageURL string
}

// CartLine is one reconciled line of the canonical cart. RowID is the
// server order row backing the line; it is empty for lines sourced from an
// ephemeral intent rather than a server temp row.
type CartLine struct {
	RowID       string
	ProductID   int64
	ProductName string
	ProductSlug string
	UnitPrice   int64
	Quantity    int
	ImageURL    string
	Subtotal    int64
}

// Cart is the reconciled in-memory cart: lines in server response order plus
// a recomputed total. The total is always derived from the lines, never read
// from a stored aggregate.
type Cart struct {
	Lines []CartLine
	Total int64
}

// Recompute rewrites every line subtotal from unit price and quantity and
// returns the cart with a freshly summed total.
func (c Cart) Recompute() Cart {
	var total int64
	for i := range c.Lines {
		if c.Lines[i].Quantity < 1 {
			c.Lines[i].Quantity = 1
		}
		c.Lines[i].Subtotal = c.Lines[i].UnitPrice * int64(c.Lines[i].Quantity)
		total += c.Lines[i].Subtotal
	}
	c.Total = total
	return c
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Lines) == 0
}

// OrderItem mirrors one line item of a server order row.
type OrderItem struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductSlug  string `json:"product_slug"`
	ProductImage string `json:"product_image,omitempty"`
	Quantity     int    `json:"quantity"`
	Price        int64  `json:"price"`
	Subtotal     int64  `json:"subtotal"`
}

// PendingOrder is the server-persisted order row consumed by this core. The
// external Order API owns its lifecycle; this client only creates rows and
// observes status changes.
type PendingOrder struct {
	ID            string
	SessionID     string
	Status        OrderStatus
	PaymentMethod string
	Items         []OrderItem
	TotalAmount   int64
	CreatedAt     time.Time
}

// BuyerDetails carries the checkout form fields.
type BuyerDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// CheckoutSnapshot is the frozen buyer-details + cart + total bundle handed
// from the details form to the payment step. It must never be re-derived from
// a live cart after commit.
type CheckoutSnapshot struct {
	Buyer       BuyerDetails
	Cart        Cart
	Total       int64
	CommittedAt time.Time
}
