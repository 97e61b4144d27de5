package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/InfernusReal/beddingstore/internal/catalog"
	"github.com/InfernusReal/beddingstore/internal/checkout"
	"github.com/InfernusReal/beddingstore/internal/domain"
	"github.com/InfernusReal/beddingstore/internal/platform/httpx"
)

// CheckoutHandlers exposes the guarded checkout form endpoints and the
// buy-now fast path.
type CheckoutHandlers struct {
	guard    *checkout.Guard
	intents  *checkout.Intents
	sessions *checkout.Session
	catalog  ProductResolver
}

// NewCheckoutHandlers constructs handlers over the checkout services.
func NewCheckoutHandlers(guard *checkout.Guard, intents *checkout.Intents, sessions *checkout.Session, resolver ProductResolver) *CheckoutHandlers {
	return &CheckoutHandlers{guard: guard, intents: intents, sessions: sessions, catalog: resolver}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/buy-now", h.buyNow)
	r.Get("/", h.enterCheckout)
	r.Post("/details", h.submitDetails)
}

// buyNow declares a single-item intent straight from a product page and arms
// the guard.
func (h *CheckoutHandlers) buyNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	var req struct {
		Slug     string `json:"slug"`
		Quantity int    `json:"quantity"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Slug) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "slug is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.BySlug(ctx, req.Slug)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.intents.DeclareBuyNow(ctx, scope, product, req.Quantity); err != nil {
		h.writeIntentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"redirect": "/checkout"})
}

// enterCheckout redeems the one-shot guard and resolves the cart the form
// should render. An unarmed entry is not an error: reload and back-button
// visits are expected, so they redirect home instead.
func (h *CheckoutHandlers) enterCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	if !h.guard.Redeem(ctx, scope) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	resolved, provenance, err := h.intents.Resolve(ctx, scope)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	if resolved.Empty() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"cart":       buildCartPayload(resolved),
		"provenance": string(provenance),
	})
}

// submitDetails freezes the buyer details and resolved cart into the
// snapshot consumed by the payment step.
func (h *CheckoutHandlers) submitDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	var req struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Address string `json:"address"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	resolved, _, err := h.intents.Resolve(ctx, scope)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	if resolved.Empty() {
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "no cart to check out", http.StatusConflict))
		return
	}

	buyer := domain.BuyerDetails{Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address}
	if err := h.sessions.Commit(ctx, scope, buyer, resolved); err != nil {
		h.writeSnapshotError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"redirect": "/payment"})
}

func (h *CheckoutHandlers) writeIntentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrIntentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, checkout.ErrIntentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func (h *CheckoutHandlers) writeSnapshotError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrSnapshotInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, checkout.ErrSnapshotUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
