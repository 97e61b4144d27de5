// Package clientstore models the browser's key-value storage for a
// server-rendered storefront: a durable scope-keyed store (the localStorage
// analog) and a short-lived TTL store (the sessionStorage analog). Each scope
// corresponds to one browser profile; views under the same scope share state.
package clientstore

import (
	"context"
	"errors"
)

// Scope identifies one browser profile's storage.
type Scope string

// ErrUnavailable indicates the backing storage cannot serve the request.
// Callers are expected to degrade rather than fail the page load.
var ErrUnavailable = errors.New("clientstore: unavailable")

// Store is the key-value contract shared by the durable and short-lived
// backends. Get reports presence explicitly so empty values stay
// distinguishable from absent keys.
type Store interface {
	Get(ctx context.Context, scope Scope, key string) (string, bool, error)
	Set(ctx context.Context, scope Scope, key, value string) error
	Delete(ctx context.Context, scope Scope, keys ...string) error
}

// Storage keys for this core's contract surface. The names mirror the keys
// the storefront has always used so that row attribution and cross-view
// semantics survive a storage dump inspection.
const (
	// Durable keys.
	KeySessionID   = "userSessionId"
	KeyLegacyCart  = "cart"
	KeyCartRefresh = "cartNeedsRefresh"

	// Short-lived transfer keys.
	KeyCartIntent      = "cartItems"
	KeyCartIntentTotal = "totalCartPrice"
	KeyBuyNow          = "buyNowProduct"
	KeyBuyNowTotal     = "totalPrice"
	KeyCheckoutGuard   = "allowCheckout"
	KeyBuyerDetails    = "formData"
	KeyFrozenCart      = "finalCart"
	KeyFrozenTotal     = "finalTotal"
	KeyPendingOrderID  = "pendingOrderId"
	KeySnapshotTime    = "finalCommittedAt"
)

// EphemeralKeys lists every short-lived key cleared when an order finalizes.
func EphemeralKeys() []string {
	return []string{
		KeyCartIntent,
		KeyCartIntentTotal,
		KeyBuyNow,
		KeyBuyNowTotal,
		KeyBuyerDetails,
		KeyFrozenCart,
		KeyFrozenTotal,
		KeySnapshotTime,
	}
}
