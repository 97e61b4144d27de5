package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/domain"
)

var (
	// ErrIntentInvalidInput indicates the caller supplied invalid intent data.
	ErrIntentInvalidInput = errors.New("checkout: invalid input")
	// ErrIntentUnavailable indicates the transfer store rejected the write.
	ErrIntentUnavailable = errors.New("checkout: unavailable")
)

// Provenance names which source produced the resolved checkout cart.
type Provenance string

const (
	// ProvenanceCartIntent is the multi-item cart declared from the cart view.
	ProvenanceCartIntent Provenance = "cart_intent"
	// ProvenanceBuyNow is the single-item fast path from a product page.
	ProvenanceBuyNow Provenance = "buy_now"
	// ProvenanceLegacy is the durable local cart kept only for old profiles.
	ProvenanceLegacy Provenance = "legacy"
	// ProvenanceNone means no source held any lines.
	ProvenanceNone Provenance = "none"
)

// storedLine is the wire shape of an intent line in the transfer store.
type storedLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"image_url"`
}

// IntentsDeps bundles collaborators required to construct the intent
// resolver.
type IntentsDeps struct {
	Transfer clientstore.Store
	Durable  clientstore.Store
	Guard    *Guard
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Intents records "proceed to checkout" declarations and resolves which cart
// the checkout form should show. Declaring an intent also arms the guard, so
// the two always travel together.
type Intents struct {
	transfer clientstore.Store
	durable  clientstore.Store
	guard    *Guard
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewIntents constructs the intent resolver.
func NewIntents(deps IntentsDeps) (*Intents, error) {
	if deps.Transfer == nil {
		return nil, errors.New("checkout intents: transfer store is required")
	}
	if deps.Durable == nil {
		return nil, errors.New("checkout intents: durable store is required")
	}
	if deps.Guard == nil {
		return nil, errors.New("checkout intents: guard is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Intents{
		transfer: deps.Transfer,
		durable:  deps.Durable,
		guard:    deps.Guard,
		logger:   logger,
	}, nil
}

// DeclareCart records a multi-item checkout intent from the cart view and
// arms the guard. Any stale buy-now intent is cleared so the two sources
// cannot conflict at resolve time.
func (i *Intents) DeclareCart(ctx context.Context, scope clientstore.Scope, cart domain.Cart) error {
	if cart.Empty() {
		return fmt.Errorf("%w: cart is empty", ErrIntentInvalidInput)
	}
	cart = cart.Recompute()

	payload, err := json.Marshal(linesToStored(cart.Lines))
	if err != nil {
		return err
	}
	if err := i.transfer.Set(ctx, scope, clientstore.KeyCartIntent, string(payload)); err != nil {
		return fmt.Errorf("%w: %v", ErrIntentUnavailable, err)
	}
	if err := i.transfer.Set(ctx, scope, clientstore.KeyCartIntentTotal, strconv.FormatInt(cart.Total, 10)); err != nil {
		return fmt.Errorf("%w: %v", ErrIntentUnavailable, err)
	}
	if err := i.transfer.Delete(ctx, scope, clientstore.KeyBuyNow, clientstore.KeyBuyNowTotal); err != nil {
		i.logger(ctx, "checkout.buy_now_clear_failed", map[string]any{"error": err.Error()})
	}

	i.logger(ctx, "checkout.cart_intent_declared", map[string]any{
		"scope": string(scope),
		"lines": len(cart.Lines),
		"total": cart.Total,
	})
	return i.guard.Arm(ctx, scope)
}

// DeclareBuyNow records a single-item fast-path intent from a product page
// and arms the guard.
func (i *Intents) DeclareBuyNow(ctx context.Context, scope clientstore.Scope, product domain.Product, quantity int) error {
	if product.ID == 0 || strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("%w: product is required", ErrIntentInvalidInput)
	}
	if quantity < 1 {
		quantity = 1
	}

	total := product.Price * int64(quantity)
	payload, err := json.Marshal([]storedLine{{
		ProductID: product.ID,
		Name:      product.Name,
		Slug:      product.Slug,
		Price:     product.Price,
		Quantity:  quantity,
		ImageURL:  product.ImageURL,
	}})
	if err != nil {
		return err
	}
	if err := i.transfer.Set(ctx, scope, clientstore.KeyBuyNow, string(payload)); err != nil {
		return fmt.Errorf("%w: %v", ErrIntentUnavailable, err)
	}
	if err := i.transfer.Set(ctx, scope, clientstore.KeyBuyNowTotal, strconv.FormatInt(total, 10)); err != nil {
		return fmt.Errorf("%w: %v", ErrIntentUnavailable, err)
	}

	i.logger(ctx, "checkout.buy_now_declared", map[string]any{
		"scope":      string(scope),
		"product_id": product.ID,
		"quantity":   quantity,
	})
	return i.guard.Arm(ctx, scope)
}

// Resolve picks the cart the checkout form should render. Sources are
// consulted in strict priority order and never mixed: the multi-item cart
// intent wins over buy-now, and the durable legacy cart is only a last
// resort for old profiles.
func (i *Intents) Resolve(ctx context.Context, scope clientstore.Scope) (domain.Cart, Provenance, error) {
	if cart, ok := i.readLines(ctx, i.transfer, scope, clientstore.KeyCartIntent); ok {
		return cart, ProvenanceCartIntent, nil
	}
	if cart, ok := i.readLines(ctx, i.transfer, scope, clientstore.KeyBuyNow); ok {
		return cart, ProvenanceBuyNow, nil
	}
	if cart, ok := i.readLines(ctx, i.durable, scope, clientstore.KeyLegacyCart); ok {
		return cart, ProvenanceLegacy, nil
	}
	return domain.Cart{}, ProvenanceNone, nil
}

func (i *Intents) readLines(ctx context.Context, store clientstore.Store, scope clientstore.Scope, key string) (domain.Cart, bool) {
	raw, ok, err := store.Get(ctx, scope, key)
	if err != nil {
		i.logger(ctx, "checkout.intent_read_failed", map[string]any{"key": key, "error": err.Error()})
		return domain.Cart{}, false
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return domain.Cart{}, false
	}

	var stored []storedLine
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		i.logger(ctx, "checkout.intent_decode_failed", map[string]any{"key": key, "error": err.Error()})
		return domain.Cart{}, false
	}
	if len(stored) == 0 {
		return domain.Cart{}, false
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
	return cart.Recompute(), true
}

func linesToStored(lines []domain.CartLine) []storedLine {
	stored := make([]storedLine, 0, len(lines))
	for _, line := range lines {
		stored = append(stored, storedLine{
			ProductID: line.ProductID,
			Name:      line.ProductName,
			Slug:      line.ProductSlug,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
			ImageURL:  line.ImageURL,
		})
	}
	return stored
}
