package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/InfernusReal/beddingstore/internal/cart"
	"github.com/InfernusReal/beddingstore/internal/catalog"
	"github.com/InfernusReal/beddingstore/internal/checkout"
	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/domain"
	"github.com/InfernusReal/beddingstore/internal/orderapi"
	"github.com/InfernusReal/beddingstore/internal/payment"
	"github.com/InfernusReal/beddingstore/internal/poller"
	"github.com/InfernusReal/beddingstore/internal/session"
)

type fakeOrderAPI struct {
	mu     sync.Mutex
	nextID int
	rows   []orderapi.OrderRow
	status map[string]domain.OrderStatus
}

func (f *fakeOrderAPI) CreateOrder(_ context.Context, req orderapi.CreateOrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := strconv.Itoa(f.nextID)
	f.rows = append(f.rows, orderapi.OrderRow{
		ID:            id,
		UserSession:   req.UserSession,
		Status:        req.Status.String(),
		PaymentMethod: req.PaymentMethod,
		TotalAmount:   req.TotalAmount,
		Items:         req.Items,
	})
	return id, nil
}

func (f *fakeOrderAPI) ListBySession(_ context.Context, sessionID string) ([]orderapi.OrderRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []orderapi.OrderRow
	for _, row := range f.rows {
		if row.UserSession == sessionID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeOrderAPI) DeleteOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.ID == orderID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeOrderAPI) OrderStatus(_ context.Context, orderID string) (domain.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status, ok := f.status[orderID]; ok {
		return status, nil
	}
	for _, row := range f.rows {
		if row.ID == orderID {
			return domain.OrderStatus(row.Status), nil
		}
	}
	return "", errors.New("not found")
}

func (f *fakeOrderAPI) setStatus(orderID string, status domain.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[orderID] = status
}

type fakeCatalog struct {
	products map[string]domain.Product
}

func (f *fakeCatalog) BySlug(_ context.Context, slug string) (domain.Product, error) {
	if product, ok := f.products[slug]; ok {
		return product, nil
	}
	return domain.Product{}, catalog.ErrProductNotFound
}

type noopNotifier struct{}

func (noopNotifier) NotifyOrder(context.Context, domain.BuyerDetails, domain.Cart, int64) error {
	return nil
}

type fixture struct {
	router http.Handler
	api    *fakeOrderAPI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	durable := clientstore.NewMemoryStore()
	transfer := clientstore.NewMemoryStore()
	api := &fakeOrderAPI{status: make(map[string]domain.OrderStatus)}
	resolver := &fakeCatalog{products: map[string]domain.Product{
		"sheet-set": {ID: 1, Name: "Sheet Set", Slug: "sheet-set", Price: 2500, ImageURL: "/img/sheet.jpg"},
	}}

	identity, err := session.NewIdentity(session.IdentityDeps{Store: durable})
	require.NoError(t, err)

	carts, err := cart.NewStore(cart.StoreDeps{
		Orders:   api,
		Catalog:  resolver,
		Sessions: identity,
		Client:   durable,
	})
	require.NoError(t, err)

	guard, err := checkout.NewGuard(checkout.GuardDeps{Transfer: transfer})
	require.NoError(t, err)
	intents, err := checkout.NewIntents(checkout.IntentsDeps{Transfer: transfer, Durable: durable, Guard: guard})
	require.NoError(t, err)
	snapshots, err := checkout.NewSession(checkout.SessionDeps{Transfer: transfer})
	require.NoError(t, err)

	flow, err := payment.NewFlow(payment.FlowDeps{
		Snapshots: snapshots,
		Orders:    api,
		Sessions:  identity,
		Transfer:  transfer,
		Durable:   durable,
		Notifier:  noopNotifier{},
		Refresher: carts.Bus(),
	})
	require.NoError(t, err)

	statusPoller, err := poller.NewPoller(poller.PollerDeps{
		Status:   api,
		Interval: 2 * time.Millisecond,
		MaxWait:  time.Second,
	})
	require.NoError(t, err)
	tracker, err := poller.NewTracker(poller.TrackerDeps{Poller: statusPoller, Tracking: flow})
	require.NoError(t, err)

	cartHandlers := NewCartHandlers(carts, resolver, intents)
	checkoutHandlers := NewCheckoutHandlers(guard, intents, snapshots, resolver)
	paymentHandlers := NewPaymentHandlers(snapshots, flow, tracker)
	orderHandlers := NewOrderHandlers(carts)

	router := NewRouter(
		WithMiddlewares(ScopeMiddleware),
		WithCartRoutes(cartHandlers.Routes),
		WithCheckoutRoutes(checkoutHandlers.Routes),
		WithPaymentRoutes(paymentHandlers.Routes),
		WithOrderRoutes(orderHandlers.Routes),
	)

	return &fixture{router: router, api: api}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.AddCookie(&http.Cookie{Name: ScopeCookie, Value: "profile-1"})
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst))
}

func TestScopeMiddlewareMintsCookie(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, ScopeCookie, cookies[0].Name)
	require.NotEmpty(t, cookies[0].Value)
}

func TestAddItemAndGetCart(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"slug": "sheet-set", "quantity": 2})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/cart/", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var payload cartPayload
	decode(t, rr, &payload)
	require.Len(t, payload.Lines, 1)
	require.Equal(t, int64(5000), payload.Lines[0].Subtotal)
	require.Equal(t, int64(5000), payload.Total)
}

func TestAddItemUnknownProduct(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"slug": "missing"})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCheckoutGuardEndToEnd(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"slug": "sheet-set", "quantity": 1})
	require.Equal(t, http.StatusCreated, rr.Code)

	// Direct entry without declaring intent redirects home.
	rr = f.do(t, http.MethodGet, "/api/v1/checkout/", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/", rr.Header().Get("Location"))

	rr = f.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/checkout/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entry struct {
		Provenance string      `json:"provenance"`
		Cart       cartPayload `json:"cart"`
	}
	decode(t, rr, &entry)
	require.Equal(t, "cart_intent", entry.Provenance)
	require.Equal(t, int64(2500), entry.Cart.Total)

	// The guard is one-shot: a reload redirects home again.
	rr = f.do(t, http.MethodGet, "/api/v1/checkout/", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestBuyNowArmsGuard(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/checkout/buy-now", map[string]any{"slug": "sheet-set", "quantity": 3})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/checkout/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entry struct {
		Provenance string      `json:"provenance"`
		Cart       cartPayload `json:"cart"`
	}
	decode(t, rr, &entry)
	require.Equal(t, "buy_now", entry.Provenance)
	require.Equal(t, int64(7500), entry.Cart.Total)
}

func TestPaymentWithoutSnapshotFailsClosed(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/payment/", nil)
	require.Equal(t, http.StatusGone, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/payment/confirm", map[string]any{"method": "cod"})
	require.Equal(t, http.StatusGone, rr.Code)
}

func submitDetails(t *testing.T, f *fixture) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"slug": "sheet-set", "quantity": 2})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/v1/checkout/details", map[string]any{
		"name":    "Ayesha Khan",
		"phone":   "03001234567",
		"email":   "ayesha@example.com",
		"address": "12 Canal Road, Lahore",
	})
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestConfirmPayOnDelivery(t *testing.T) {
	f := newFixture(t)
	submitDetails(t, f)

	rr := f.do(t, http.MethodGet, "/api/v1/payment/", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/payment/confirm", map[string]any{"method": "cod"})
	require.Equal(t, http.StatusCreated, rr.Code)

	var result struct {
		State   string `json:"state"`
		OrderID string `json:"order_id"`
	}
	decode(t, rr, &result)
	require.Equal(t, "confirmed", result.State)
	require.NotEmpty(t, result.OrderID)

	// Cart is gone and the order shows up in history.
	rr = f.do(t, http.MethodGet, "/api/v1/cart/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var loaded cartPayload
	decode(t, rr, &loaded)
	require.Empty(t, loaded.Lines)

	rr = f.do(t, http.MethodGet, "/api/v1/orders/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Orders []orderPayload `json:"orders"`
	}
	decode(t, rr, &history)
	require.Len(t, history.Orders, 1)
	require.Equal(t, "confirmed", history.Orders[0].Status)
}

func TestConfirmTransferWatchesConfirmation(t *testing.T) {
	f := newFixture(t)
	submitDetails(t, f)

	rr := f.do(t, http.MethodPost, "/api/v1/payment/confirm", map[string]any{"method": "transfer"})
	require.Equal(t, http.StatusCreated, rr.Code)

	var result struct {
		State   string `json:"state"`
		OrderID string `json:"order_id"`
	}
	decode(t, rr, &result)
	require.Equal(t, "awaiting_confirmation", result.State)

	rr = f.do(t, http.MethodGet, "/api/v1/payment/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status struct {
		Watching bool   `json:"watching"`
		OrderID  string `json:"order_id"`
	}
	decode(t, rr, &status)
	require.True(t, status.Watching)
	require.Equal(t, result.OrderID, status.OrderID)

	// Merchant confirms out of band; the watch observes it.
	f.api.setStatus(result.OrderID, domain.OrderStatusConfirmed)
	require.Eventually(t, func() bool {
		rr := f.do(t, http.MethodGet, "/api/v1/payment/status", nil)
		var status struct {
			Polling bool   `json:"polling"`
			Outcome string `json:"outcome"`
		}
		decode(t, rr, &status)
		return !status.Polling && status.Outcome == "confirmed"
	}, time.Second, 5*time.Millisecond)

	rr = f.do(t, http.MethodPost, "/api/v1/payment/cancel-watch", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/nope", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	var payload struct {
		Error string `json:"error"`
	}
	decode(t, rr, &payload)
	require.Equal(t, "route_not_found", payload.Error)
}
