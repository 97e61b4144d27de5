package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/InfernusReal/beddingstore/internal/checkout"
	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/domain"
	"github.com/InfernusReal/beddingstore/internal/orderapi"
)

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid payment
	// parameters.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentUnavailable indicates order creation failed. Nothing was
	// cleared; the submission is retryable.
	ErrPaymentUnavailable = errors.New("payment: unavailable")
)

// Payment ids recorded on the order row. The transfer reference stays
// "pending" until the merchant verifies funds out of band.
const (
	paymentIDDelivery = "N/A"
	paymentIDTransfer = "pending"
)

// State is the terminal state reached by a submission.
type State string

const (
	// StateConfirmed means the order is final; no further confirmation is
	// expected.
	StateConfirmed State = "confirmed"
	// StateAwaitingConfirmation means the order is pending merchant
	// verification and should be polled.
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

// Result reports the outcome of a successful submission.
type Result struct {
	State   State
	OrderID string
}

// Snapshots reads back the committed checkout snapshot.
type Snapshots interface {
	Retrieve(ctx context.Context, scope clientstore.Scope) (domain.CheckoutSnapshot, error)
}

// Orders is the slice of the Order API the payment flow needs.
type Orders interface {
	CreateOrder(ctx context.Context, req orderapi.CreateOrderRequest) (string, error)
	ListBySession(ctx context.Context, sessionID string) ([]orderapi.OrderRow, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// Sessions provides the session id attributing the order to a scope.
type Sessions interface {
	GetOrCreate(ctx context.Context, scope clientstore.Scope) string
}

// MerchantNotifier delivers the order notification on the pay-on-delivery
// path.
type MerchantNotifier interface {
	NotifyOrder(ctx context.Context, buyer domain.BuyerDetails, cart domain.Cart, total int64) error
}

// Refresher invalidates cart views after storage is cleared.
type Refresher interface {
	Publish()
}

// FlowDeps bundles collaborators required to construct a payment flow.
type FlowDeps struct {
	Snapshots Snapshots
	Orders    Orders
	Sessions  Sessions
	Transfer  clientstore.Store
	Durable   clientstore.Store
	Notifier  MerchantNotifier
	Refresher Refresher
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Flow turns a committed snapshot into an order. Pay-on-delivery notifies
// the merchant and confirms immediately; pay-then-confirm creates a pending
// order and hands its id to the status poller.
type Flow struct {
	snapshots Snapshots
	orders    Orders
	sessions  Sessions
	transfer  clientstore.Store
	durable   clientstore.Store
	notifier  MerchantNotifier
	refresher Refresher
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewFlow constructs a payment flow.
func NewFlow(deps FlowDeps) (*Flow, error) {
	if deps.Snapshots == nil {
		return nil, errors.New("payment flow: snapshots are required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment flow: orders client is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("payment flow: session provider is required")
	}
	if deps.Transfer == nil {
		return nil, errors.New("payment flow: transfer store is required")
	}
	if deps.Durable == nil {
		return nil, errors.New("payment flow: durable store is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("payment flow: notifier is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Flow{
		snapshots: deps.Snapshots,
		orders:    deps.Orders,
		sessions:  deps.Sessions,
		transfer:  deps.Transfer,
		durable:   deps.Durable,
		notifier:  deps.Notifier,
		refresher: deps.Refresher,
		logger:    logger,
	}, nil
}

// Submit creates the order for the chosen method. Storage is only mutated
// after the order row exists; any earlier failure leaves the snapshot intact
// and the submission retryable. A missing snapshot is terminal, not
// retryable.
func (f *Flow) Submit(ctx context.Context, scope clientstore.Scope, method domain.PaymentMethod) (Result, error) {
	if !method.Valid() {
		return Result{}, fmt.Errorf("%w: unknown payment method %q", ErrPaymentInvalidInput, method)
	}

	snapshot, err := f.snapshots.Retrieve(ctx, scope)
	if err != nil {
		if errors.Is(err, checkout.ErrSnapshotNotFound) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
	if snapshot.Cart.Empty() {
		return Result{}, checkout.ErrSnapshotNotFound
	}

	sessionID := f.sessions.GetOrCreate(ctx, scope)
	switch method {
	case domain.PaymentMethodPayOnDelivery:
		return f.submitPayOnDelivery(ctx, scope, sessionID, snapshot)
	default:
		return f.submitPayThenConfirm(ctx, scope, sessionID, snapshot)
	}
}

// PendingOrderID returns the tracked order id from an earlier
// pay-then-confirm submission, if any.
func (f *Flow) PendingOrderID(ctx context.Context, scope clientstore.Scope) (string, bool) {
	val, ok, err := f.transfer.Get(ctx, scope, clientstore.KeyPendingOrderID)
	if err != nil || !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}

// ClearTracking drops the pending-order id once polling finishes.
func (f *Flow) ClearTracking(ctx context.Context, scope clientstore.Scope) {
	if err := f.transfer.Delete(ctx, scope, clientstore.KeyPendingOrderID); err != nil {
		f.logger(ctx, "payment.tracking_clear_failed", map[string]any{"error": err.Error()})
	}
}

func (f *Flow) submitPayOnDelivery(ctx context.Context, scope clientstore.Scope, sessionID string, snapshot domain.CheckoutSnapshot) (Result, error) {
	if err := f.notifier.NotifyOrder(ctx, snapshot.Buyer, snapshot.Cart, snapshot.Total); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}

	orderID, err := f.createOrder(ctx, sessionID, snapshot, domain.PaymentMethodPayOnDelivery, paymentIDDelivery, domain.OrderStatusConfirmed)
	if err != nil {
		return Result{}, err
	}

	f.clearAfterSubmit(ctx, scope, sessionID, true)
	f.logger(ctx, "payment.confirmed", map[string]any{
		"order_id":   orderID,
		"session_id": sessionID,
		"total":      snapshot.Total,
	})
	return Result{State: StateConfirmed, OrderID: orderID}, nil
}

func (f *Flow) submitPayThenConfirm(ctx context.Context, scope clientstore.Scope, sessionID string, snapshot domain.CheckoutSnapshot) (Result, error) {
	orderID, err := f.createOrder(ctx, sessionID, snapshot, domain.PaymentMethodPayThenConfirm, paymentIDTransfer, domain.OrderStatusPending)
	if err != nil {
		return Result{}, err
	}

	if err := f.transfer.Set(ctx, scope, clientstore.KeyPendingOrderID, orderID); err != nil {
		f.logger(ctx, "payment.tracking_write_failed", map[string]any{"order_id": orderID, "error": err.Error()})
	}

	// The snapshot keys survive so the waiting screen can still render the
	// order summary; only the cart sources are cleared.
	f.clearAfterSubmit(ctx, scope, sessionID, false)
	f.logger(ctx, "payment.awaiting_confirmation", map[string]any{
		"order_id":   orderID,
		"session_id": sessionID,
		"total":      snapshot.Total,
	})
	return Result{State: StateAwaitingConfirmation, OrderID: orderID}, nil
}

func (f *Flow) createOrder(ctx context.Context, sessionID string, snapshot domain.CheckoutSnapshot, method domain.PaymentMethod, paymentID string, status domain.OrderStatus) (string, error) {
	items := make([]domain.OrderItem, 0, len(snapshot.Cart.Lines))
	for _, line := range snapshot.Cart.Lines {
		items = append(items, domain.OrderItem{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			ProductSlug:  line.ProductSlug,
			ProductImage: line.ImageURL,
			Quantity:     line.Quantity,
			Price:        line.UnitPrice,
			Subtotal:     line.Subtotal,
		})
	}

	orderID, err := f.orders.CreateOrder(ctx, orderapi.CreateOrderRequest{
		BuyerName:     snapshot.Buyer.Name,
		BuyerEmail:    snapshot.Buyer.Email,
		BuyerPhone:    snapshot.Buyer.Phone,
		BuyerAddress:  snapshot.Buyer.Address,
		PaymentMethod: string(method),
		PaymentID:     paymentID,
		TotalAmount:   snapshot.Total,
		Status:        status,
		UserSession:   sessionID,
		Items:         items,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
	return orderID, nil
}

// clearAfterSubmit wipes the cart sources once the order row exists. The
// submitted order is a distinct row, so the superseded temp rows are deleted
// here too; leftovers would resurface as a full cart. All of this is best
// effort: the order already exists, so failures are logged, never returned.
func (f *Flow) clearAfterSubmit(ctx context.Context, scope clientstore.Scope, sessionID string, includeSnapshot bool) {
	keys := []string{
		clientstore.KeyCartIntent,
		clientstore.KeyCartIntentTotal,
		clientstore.KeyBuyNow,
		clientstore.KeyBuyNowTotal,
	}
	if includeSnapshot {
		keys = clientstore.EphemeralKeys()
	}
	if err := f.transfer.Delete(ctx, scope, keys...); err != nil {
		f.logger(ctx, "payment.transfer_clear_failed", map[string]any{"error": err.Error()})
	}
	if err := f.durable.Delete(ctx, scope, clientstore.KeyLegacyCart, clientstore.KeyCartRefresh); err != nil {
		f.logger(ctx, "payment.durable_clear_failed", map[string]any{"error": err.Error()})
	}

	rows, err := f.orders.ListBySession(ctx, sessionID)
	if err != nil {
		f.logger(ctx, "payment.temp_cleanup_failed", map[string]any{"session_id": sessionID, "error": err.Error()})
	} else {
		for _, row := range rows {
			if domain.OrderStatus(strings.ToLower(strings.TrimSpace(row.Status))) != domain.OrderStatusTemp {
				continue
			}
			if err := f.orders.DeleteOrder(ctx, row.ID); err != nil {
				f.logger(ctx, "payment.temp_cleanup_failed", map[string]any{"row_id": row.ID, "error": err.Error()})
			}
		}
	}

	if f.refresher != nil {
		f.refresher.Publish()
	}
}
