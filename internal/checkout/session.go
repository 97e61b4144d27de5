package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/domain"
)

var (
	// ErrSnapshotNotFound indicates no committed snapshot exists for the
	// scope. The payment step fails closed on it.
	ErrSnapshotNotFound = errors.New("checkout: snapshot not found")
	// ErrSnapshotInvalidInput indicates the commit carried unusable data.
	ErrSnapshotInvalidInput = errors.New("checkout: invalid input")
	// ErrSnapshotUnavailable indicates the transfer store rejected the
	// operation.
	ErrSnapshotUnavailable = errors.New("checkout: unavailable")
)

// SessionDeps bundles collaborators required to construct a checkout
// session.
type SessionDeps struct {
	Transfer clientstore.Store
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Session hands the frozen buyer-details snapshot from the details form to
// the payment step. The snapshot is the only source of truth for submission;
// the live cart is never re-queried after commit.
type Session struct {
	transfer clientstore.Store
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewSession constructs a checkout session over the transfer store.
func NewSession(deps SessionDeps) (*Session, error) {
	if deps.Transfer == nil {
		return nil, errors.New("checkout session: transfer store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Session{transfer: deps.Transfer, clock: clock, logger: logger}, nil
}

// Commit freezes the buyer details and cart under the transfer keys read by
// the payment step. Totals are recomputed once here and never again.
func (s *Session) Commit(ctx context.Context, scope clientstore.Scope, buyer domain.BuyerDetails, cart domain.Cart) error {
	buyer.Name = strings.TrimSpace(buyer.Name)
	buyer.Phone = strings.TrimSpace(buyer.Phone)
	buyer.Email = strings.TrimSpace(buyer.Email)
	buyer.Address = strings.TrimSpace(buyer.Address)
	if buyer.Name == "" || buyer.Phone == "" || buyer.Email == "" || buyer.Address == "" {
		return fmt.Errorf("%w: all buyer fields are required", ErrSnapshotInvalidInput)
	}
	if cart.Empty() {
		return fmt.Errorf("%w: cart is empty", ErrSnapshotInvalidInput)
	}
	cart = cart.Recompute()

	buyerPayload, err := json.Marshal(buyer)
	if err != nil {
		return err
	}
	cartPayload, err := json.Marshal(linesToStored(cart.Lines))
	if err != nil {
		return err
	}

	writes := []struct{ key, value string }{
		{clientstore.KeyBuyerDetails, string(buyerPayload)},
		{clientstore.KeyFrozenCart, string(cartPayload)},
		{clientstore.KeyFrozenTotal, strconv.FormatInt(cart.Total, 10)},
		{clientstore.KeySnapshotTime, s.clock().UTC().Format(time.RFC3339Nano)},
	}
	for _, w := range writes {
		if err := s.transfer.Set(ctx, scope, w.key, w.value); err != nil {
			return fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
		}
	}

	s.logger(ctx, "checkout.snapshot_committed", map[string]any{
		"scope": string(scope),
		"lines": len(cart.Lines),
		"total": cart.Total,
	})
	return nil
}

// Retrieve reads back the committed snapshot. A missing or unreadable
// snapshot is ErrSnapshotNotFound; callers must treat it as terminal, not as
// a prompt to rebuild from live state.
func (s *Session) Retrieve(ctx context.Context, scope clientstore.Scope) (domain.CheckoutSnapshot, error) {
	rawBuyer, ok, err := s.transfer.Get(ctx, scope, clientstore.KeyBuyerDetails)
	if err != nil {
		return domain.CheckoutSnapshot{}, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	if !ok {
		return domain.CheckoutSnapshot{}, ErrSnapshotNotFound
	}
	rawCart, ok, err := s.transfer.Get(ctx, scope, clientstore.KeyFrozenCart)
	if err != nil {
		return domain.CheckoutSnapshot{}, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	if !ok {
		return domain.CheckoutSnapshot{}, ErrSnapshotNotFound
	}

	var buyer domain.BuyerDetails
	if err := json.Unmarshal([]byte(rawBuyer), &buyer); err != nil {
		return domain.CheckoutSnapshot{}, ErrSnapshotNotFound
	}
	var stored []storedLine
	if err := json.Unmarshal([]byte(rawCart), &stored); err != nil || len(stored) == 0 {
		return domain.CheckoutSnapshot{}, ErrSnapshotNotFound
	}

	cart := domain.Cart{Lines: make([]domain.CartLine, 0, len(stored))}
	for _, line := range stored {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			ProductSlug: line.Slug,
			UnitPrice:   line.Price,
			Quantity:    line.Quantity,
			ImageURL:    line.ImageURL,
		})
	}
	cart = cart.Recompute()

	// The stored total is the committed value; trust it over a recompute so
	// the buyer pays what the form showed even if prices drifted since.
	total := cart.Total
	if rawTotal, ok, err := s.transfer.Get(ctx, scope, clientstore.KeyFrozenTotal); err == nil && ok {
		if parsed, parseErr := strconv.ParseInt(strings.TrimSpace(rawTotal), 10, 64); parseErr == nil {
			total = parsed
		}
	}

	var committedAt time.Time
	if rawTime, ok, err := s.transfer.Get(ctx, scope, clientstore.KeySnapshotTime); err == nil && ok {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, strings.TrimSpace(rawTime)); parseErr == nil {
			committedAt = parsed
		}
	}

	return domain.CheckoutSnapshot{
		Buyer:       buyer,
		Cart:        cart,
		Total:       total,
		CommittedAt: committedAt,
	}, nil
}
