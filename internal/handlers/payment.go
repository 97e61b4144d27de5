package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/InfernusReal/beddingstore/internal/checkout"
	"github.com/InfernusReal/beddingstore/internal/domain"
	"github.com/InfernusReal/beddingstore/internal/payment"
	"github.com/InfernusReal/beddingstore/internal/platform/httpx"
	"github.com/InfernusReal/beddingstore/internal/poller"
)

// PaymentHandlers exposes the payment step: snapshot rendering, order
// submission, and the confirmation watch for the transfer path.
type PaymentHandlers struct {
	snapshots *checkout.Session
	flow      *payment.Flow
	tracker   *poller.Tracker
}

// NewPaymentHandlers constructs handlers over the payment flow.
func NewPaymentHandlers(snapshots *checkout.Session, flow *payment.Flow, tracker *poller.Tracker) *PaymentHandlers {
	return &PaymentHandlers{snapshots: snapshots, flow: flow, tracker: tracker}
}

// Routes wires the /payment endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getPayment)
	r.Post("/confirm", h.confirm)
	r.Get("/status", h.status)
	r.Post("/cancel-watch", h.cancelWatch)
}

// getPayment renders the frozen snapshot. Without one the step fails closed:
// there is no order data to guess at.
func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	snapshot, err := h.snapshots.Retrieve(ctx, scope)
	if err != nil {
		if errors.Is(err, checkout.ErrSnapshotNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("no_order_data", "no order data; restart checkout from the cart", http.StatusGone))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment step is unavailable", http.StatusServiceUnavailable))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"buyer": snapshot.Buyer,
		"cart":  buildCartPayload(snapshot.Cart),
		"total": snapshot.Total,
	})
}

func (h *PaymentHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	var req struct {
		Method string `json:"method"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.flow.Submit(ctx, scope, domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method))))
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	if result.State == payment.StateAwaitingConfirmation {
		h.tracker.Watch(scope, result.OrderID)
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"state":    string(result.State),
		"order_id": result.OrderID,
	})
}

// status reports the confirmation watch. When no watch is running but a
// tracked order id survives (e.g. after a restart), the watch is resumed.
func (h *PaymentHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	state, watching := h.tracker.State(scope)
	if !watching {
		orderID, tracked := h.flow.PendingOrderID(ctx, scope)
		if !tracked {
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"watching": false})
			return
		}
		h.tracker.Watch(scope, orderID)
		state, _ = h.tracker.State(scope)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"watching": true,
		"order_id": state.OrderID,
		"polling":  state.Polling,
		"outcome":  string(state.Outcome),
	})
}

func (h *PaymentHandlers) cancelWatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeMissingScope(ctx, w)
		return
	}

	h.tracker.Cancel(scope)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (h *PaymentHandlers) writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrSnapshotNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("no_order_data", "no order data; restart checkout from the cart", http.StatusGone))
	case errors.Is(err, payment.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payment.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "order submission failed; try again", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
