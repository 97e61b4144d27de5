// Package checkout carries intent from the cart into the payment step: the
// one-shot entry guard, intent provenance resolution, and the frozen
// buyer-details snapshot.
package checkout

import (
	"context"
	"errors"

	"github.com/InfernusReal/beddingstore/internal/clientstore"
)

const guardArmedValue = "true"

// GuardDeps bundles collaborators required to construct a checkout guard.
type GuardDeps struct {
	Transfer clientstore.Store
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Guard is the one-shot ticket authorizing a single entry into the checkout
// form. Arm issues the ticket; Redeem consumes it on first evaluation of the
// checkout route, so reload and back-navigation find it spent.
type Guard struct {
	transfer clientstore.Store
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewGuard constructs a checkout guard on top of the short-lived transfer
// store.
func NewGuard(deps GuardDeps) (*Guard, error) {
	if deps.Transfer == nil {
		return nil, errors.New("checkout guard: transfer store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Guard{transfer: deps.Transfer, logger: logger}, nil
}

// Arm authorizes one checkout entry for the scope.
func (g *Guard) Arm(ctx context.Context, scope clientstore.Scope) error {
	return g.transfer.Set(ctx, scope, clientstore.KeyCheckoutGuard, guardArmedValue)
}

// Redeem consumes the ticket and reports whether one was armed. The ticket is
// cleared even when the subsequent render fails; a fresh Arm is required for
// every entry.
func (g *Guard) Redeem(ctx context.Context, scope clientstore.Scope) bool {
	val, ok, err := g.transfer.Get(ctx, scope, clientstore.KeyCheckoutGuard)
	if err != nil {
		g.logger(ctx, "checkout.guard_read_failed", map[string]any{"error": err.Error()})
		return false
	}
	if ok {
		if err := g.transfer.Delete(ctx, scope, clientstore.KeyCheckoutGuard); err != nil {
			g.logger(ctx, "checkout.guard_clear_failed", map[string]any{"error": err.Error()})
		}
	}
	return ok && val == guardArmedValue
}
