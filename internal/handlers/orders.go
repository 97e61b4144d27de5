package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/InfernusReal/beddingstore/internal/cart"
	"github.com/InfernusReal/beddingstore/internal/platform/httpx"
)

// OrderHandlers exposes the order-history endpoint.
type OrderHandlers struct {
	carts *cart.Store
}

// NewOrderHandlers constructs handlers over the cart store's history view.
func NewOrderHandlers(carts *cart.Store) *OrderHandlers {
	return &OrderHandlers{carts: carts}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
}

type orderPayload struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	PaymentMethod string            `json:"payment_method"`
	TotalAmount   int64             `json:"total_amount"`
	CreatedAt     string            `json:"created_at,omitempty"`
	Items         []cartLinePayload `json:"items"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	history, err := h.carts.OrderHistory(ctx, scope)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order history is unavailable", http.StatusServiceUnavailable))
		return
	}

	orders := make([]orderPayload, 0, len(history))
	for _, order := range history {
		payload := orderPayload{
			ID:            order.ID,
			Status:        order.Status.String(),
			PaymentMethod: order.PaymentMethod,
			TotalAmount:   order.TotalAmount,
			Items:         make([]cartLinePayload, 0, len(order.Items)),
		}
		if !order.CreatedAt.IsZero() {
			payload.CreatedAt = order.CreatedAt.UTC().Format(time.RFC3339)
		}
		for _, item := range order.Items {
			payload.Items = append(payload.Items, cartLinePayload{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				ProductSlug: item.ProductSlug,
				UnitPrice:   item.Price,
				Quantity:    item.Quantity,
				ImageURL:    item.ProductImage,
				Subtotal:    item.Subtotal,
			})
		}
		orders = append(orders, payload)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}
