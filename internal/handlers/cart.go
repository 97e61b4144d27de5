package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/InfernusReal/beddingstore/internal/cart"
	"github.com/InfernusReal/beddingstore/internal/catalog"
	"github.com/InfernusReal/beddingstore/internal/checkout"
	"github.com/InfernusReal/beddingstore/internal/domain"
	"github.com/InfernusReal/beddingstore/internal/platform/httpx"
)

// ProductResolver resolves a product by slug for add-to-cart requests.
type ProductResolver interface {
	BySlug(ctx context.Context, slug string) (domain.Product, error)
}

// CartHandlers exposes the cart endpoints.
type CartHandlers struct {
	carts   *cart.Store
	catalog ProductResolver
	intents *checkout.Intents
}

// NewCartHandlers constructs handlers over the cart store.
func NewCartHandlers(carts *cart.Store, resolver ProductResolver, intents *checkout.Intents) *CartHandlers {
	return &CartHandlers{carts: carts, catalog: resolver, intents: intents}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{rowID}", h.updateQuantity)
	r.Delete("/items/{rowID}", h.removeItem)
	r.Post("/checkout", h.proceedToCheckout)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	loaded, err := h.carts.Load(ctx, scope)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	payload := buildCartPayload(loaded)
	w.Header().Set("X-Cart-Refresh", boolHeader(h.carts.ConsumeRefreshFlag(ctx, scope)))
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
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

	if err := h.carts.AddItem(ctx, scope, product, req.Quantity); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"added": true, "product_id": product.ID})
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	rowID := chi.URLParam(r, "rowID")
	if err := h.carts.UpdateQuantity(ctx, scope, rowID, req.Quantity); err != nil {
		var lost *cart.QuantityUpdateError
		if errors.As(err, &lost) {
			// The remove succeeded but the re-add failed; hand the removed
			// line back so the caller can offer a restore.
			httpx.WriteError(ctx, w, httpx.
				NewError("cart_line_lost", "quantity update removed the line but could not re-add it", http.StatusBadGateway).
				WithDetails(map[string]any{
					"product_id":   lost.Removed.ProductID,
					"product_slug": lost.Removed.ProductSlug,
					"quantity":     lost.Removed.Quantity,
				}))
			return
		}
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	if err := h.carts.RemoveItem(ctx, scope, chi.URLParam(r, "rowID")); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"removed": true})
}

// proceedToCheckout declares the cart intent and arms the checkout guard, so
// the caller may navigate to the checkout form exactly once.
func (h *CartHandlers) proceedToCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	loaded, err := h.carts.Load(ctx, scope)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	if loaded.Empty() {
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusConflict))
		return
	}

	if err := h.intents.DeclareCart(ctx, scope, loaded); err != nil {
		h.writeIntentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"redirect": "/checkout", "total": loaded.Total})
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, cart.ErrCartLineNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_line_not_found", "cart line not found", http.StatusNotFound))
	case errors.Is(err, cart.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func (h *CartHandlers) writeIntentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrIntentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, checkout.ErrIntentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func writeMissingScope(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("missing_scope", "profile scope is required", http.StatusBadRequest))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

func boolHeader(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
