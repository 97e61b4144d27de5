// Package cart reconciles the shopper's cart from server temp rows and keeps
// sibling views in sync through a refresh bus.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/domain"
	"github.com/InfernusReal/beddingstore/internal/orderapi"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid cart parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartUnavailable indicates the Order API could not serve the request.
	ErrCartUnavailable = errors.New("cart: unavailable")
	// ErrCartLineNotFound indicates no temp row matches the given row id.
	ErrCartLineNotFound = errors.New("cart: line not found")
)

// QuantityUpdateError reports a quantity update that removed the old row but
// failed to write the replacement. Removed carries the lost line so the
// caller can offer a restore.
type QuantityUpdateError struct {
	Removed domain.CartLine
	Err     error
}

func (e *QuantityUpdateError) Error() string {
	return fmt.Sprintf("cart: quantity update lost line for product %d: %v", e.Removed.ProductID, e.Err)
}

func (e *QuantityUpdateError) Unwrap() error { return e.Err }

// Temp rows carry placeholder buyer fields; the Order API requires the full
// buyer block on every row.
const (
	tempBuyerName    = "Guest User"
	tempBuyerEmail   = "guest@example.com"
	tempBuyerPhone   = "0000000000"
	tempBuyerAddress = "Temp Address"
	tempPaymentKind  = "cart"
	tempPaymentID    = "temp"
)

// Orders is the slice of the Order API the cart needs.
type Orders interface {
	CreateOrder(ctx context.Context, req orderapi.CreateOrderRequest) (string, error)
	ListBySession(ctx context.Context, sessionID string) ([]orderapi.OrderRow, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// Catalog resolves product records for image enrichment.
type Catalog interface {
	BySlug(ctx context.Context, slug string) (domain.Product, error)
}

// Sessions provides the session id attributing server rows to a scope.
type Sessions interface {
	GetOrCreate(ctx context.Context, scope clientstore.Scope) string
}

// StoreDeps bundles collaborators required to construct a cart store.
type StoreDeps struct {
	Orders           Orders
	Catalog          Catalog
	Sessions         Sessions
	Client           clientstore.Store
	Bus              *Bus
	Logger           func(ctx context.Context, event string, fields map[string]any)
	PlaceholderImage string
}

// Store assembles the canonical cart from server temp rows for a session and
// mutates it through the Order API.
type Store struct {
	orders      Orders
	catalog     Catalog
	sessions    Sessions
	client      clientstore.Store
	bus         *Bus
	logger      func(ctx context.Context, event string, fields map[string]any)
	placeholder string
}

// NewStore constructs a cart store.
func NewStore(deps StoreDeps) (*Store, error) {
	if deps.Orders == nil {
		return nil, errors.New("cart store: orders client is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("cart store: session provider is required")
	}
	if deps.Client == nil {
		return nil, errors.New("cart store: client store is required")
	}

	bus := deps.Bus
	if bus == nil {
		bus = NewBus()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	placeholder := strings.TrimSpace(deps.PlaceholderImage)
	if placeholder == "" {
		placeholder = "/placeholder.png"
	}

	return &Store{
		orders:      deps.Orders,
		catalog:     deps.Catalog,
		sessions:    deps.Sessions,
		client:      deps.Client,
		bus:         bus,
		logger:      logger,
		placeholder: placeholder,
	}, nil
}

// Bus exposes the refresh bus so views can subscribe to invalidation.
func (s *Store) Bus() *Bus { return s.bus }

// AddItem writes a new temp row for the product. Repeated adds of the same
// product create additional rows; lines are merged at render time, not here.
func (s *Store) AddItem(ctx context.Context, scope clientstore.Scope, product domain.Product, quantity int) error {
	if product.ID == 0 || strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("%w: product is required", ErrCartInvalidInput)
	}
	if quantity < 1 {
		quantity = 1
	}

	sessionID := s.sessions.GetOrCreate(ctx, scope)
	subtotal := product.Price * int64(quantity)
	_, err := s.orders.CreateOrder(ctx, orderapi.CreateOrderRequest{
		BuyerName:     tempBuyerName,
		BuyerEmail:    tempBuyerEmail,
		BuyerPhone:    tempBuyerPhone,
		BuyerAddress:  tempBuyerAddress,
		PaymentMethod: tempPaymentKind,
		PaymentID:     tempPaymentID,
		TotalAmount:   subtotal,
		Status:        domain.OrderStatusTemp,
		UserSession:   sessionID,
		Items: []domain.OrderItem{{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductSlug:  product.Slug,
			ProductImage: product.ImageURL,
			Quantity:     quantity,
			Price:        product.Price,
			Subtotal:     subtotal,
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{
		"session_id": sessionID,
		"product_id": product.ID,
		"quantity":   quantity,
	})
	s.signalRefresh(ctx, scope)
	return nil
}

// Load fetches the session's temp rows and reconciles them into a cart.
// Lines keep server response order and totals are always recomputed from the
// current unit prices.
func (s *Store) Load(ctx context.Context, scope clientstore.Scope) (domain.Cart, error) {
	sessionID := s.sessions.GetOrCreate(ctx, scope)
	rows, err := s.orders.ListBySession(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	cart := domain.Cart{}
	for _, row := range rows {
		if domain.OrderStatus(strings.ToLower(strings.TrimSpace(row.Status))) != domain.OrderStatusTemp {
			continue
		}
		for _, item := range row.Items {
			line := domain.CartLine{
				RowID:       strings.TrimSpace(row.ID),
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				ProductSlug: item.ProductSlug,
				UnitPrice:   item.Price,
				Quantity:    item.Quantity,
				ImageURL:    strings.TrimSpace(item.ProductImage),
			}
			if line.ImageURL == "" {
				line.ImageURL = s.enrichImage(ctx, line.ProductSlug)
			}
			cart.Lines = append(cart.Lines, line)
		}
	}
	return cart.Recompute(), nil
}

// RemoveItem deletes the server row backing a cart line.
func (s *Store) RemoveItem(ctx context.Context, scope clientstore.Scope, rowID string) error {
	rowID = strings.TrimSpace(rowID)
	if rowID == "" {
		return fmt.Errorf("%w: row id is required", ErrCartInvalidInput)
	}
	if err := s.orders.DeleteOrder(ctx, rowID); err != nil {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	s.signalRefresh(ctx, scope)
	return nil
}

// UpdateQuantity rewrites a line's quantity by removing its row and inserting
// a replacement. The two steps are not atomic: when the re-add fails after a
// successful remove, the returned QuantityUpdateError carries the lost line.
func (s *Store) UpdateQuantity(ctx context.Context, scope clientstore.Scope, rowID string, quantity int) error {
	rowID = strings.TrimSpace(rowID)
	if rowID == "" {
		return fmt.Errorf("%w: row id is required", ErrCartInvalidInput)
	}
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	cart, err := s.Load(ctx, scope)
	if err != nil {
		return err
	}
	var line domain.CartLine
	var found bool
	for _, candidate := range cart.Lines {
		if candidate.RowID == rowID {
			line = candidate
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: row %s", ErrCartLineNotFound, rowID)
	}

	if err := s.orders.DeleteOrder(ctx, rowID); err != nil {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	err = s.AddItem(ctx, scope, domain.Product{
		ID:       line.ProductID,
		Name:     line.ProductName,
		Slug:     line.ProductSlug,
		Price:    line.UnitPrice,
		ImageURL: line.ImageURL,
	}, quantity)
	if err != nil {
		s.logger(ctx, "cart.quantity_update_lost_line", map[string]any{
			"row_id":     rowID,
			"product_id": line.ProductID,
			"error":      err.Error(),
		})
		s.signalRefresh(ctx, scope)
		return &QuantityUpdateError{Removed: line, Err: err}
	}
	return nil
}

// OrderHistory returns the session's submitted orders, newest first. Temp
// rows are excluded.
func (s *Store) OrderHistory(ctx context.Context, scope clientstore.Scope) ([]domain.PendingOrder, error) {
	sessionID := s.sessions.GetOrCreate(ctx, scope)
	rows, err := s.orders.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	orders := make([]domain.PendingOrder, 0, len(rows))
	for _, row := range rows {
		order := row.ToPendingOrder()
		if order.Status == domain.OrderStatusTemp {
			continue
		}
		orders = append(orders, order)
	}
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && orders[j].CreatedAt.After(orders[j-1].CreatedAt); j-- {
			orders[j], orders[j-1] = orders[j-1], orders[j]
		}
	}
	return orders, nil
}

// ConsumeRefreshFlag reports whether a persisted refresh flag was set for the
// scope and clears it. The flag covers cross-process invalidation that the
// in-memory bus cannot deliver.
func (s *Store) ConsumeRefreshFlag(ctx context.Context, scope clientstore.Scope) bool {
	val, ok, err := s.client.Get(ctx, scope, clientstore.KeyCartRefresh)
	if err != nil || !ok {
		return false
	}
	if err := s.client.Delete(ctx, scope, clientstore.KeyCartRefresh); err != nil {
		s.logger(ctx, "cart.refresh_flag_clear_failed", map[string]any{"error": err.Error()})
	}
	return val == "true"
}

func (s *Store) signalRefresh(ctx context.Context, scope clientstore.Scope) {
	if err := s.client.Set(ctx, scope, clientstore.KeyCartRefresh, "true"); err != nil {
		s.logger(ctx, "cart.refresh_flag_write_failed", map[string]any{"error": err.Error()})
	}
	s.bus.Publish()
}

func (s *Store) enrichImage(ctx context.Context, slug string) string {
	if s.catalog == nil || strings.TrimSpace(slug) == "" {
		return s.placeholder
	}
	enrichCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	product, err := s.catalog.BySlug(enrichCtx, slug)
	if err != nil || strings.TrimSpace(product.ImageURL) == "" {
		if err != nil {
			s.logger(ctx, "cart.image_enrichment_failed", map[string]any{"slug": slug, "error": err.Error()})
		}
		return s.placeholder
	}
	return product.ImageURL
}
