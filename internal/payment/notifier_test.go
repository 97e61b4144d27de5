package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/InfernusReal/beddingstore/internal/domain"
)

func TestNotifyOrderPostsPayload(t *testing.T) {
	var gotPath string
	var got notificationPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL)
	buyer := domain.BuyerDetails{Name: "Ayesha Khan", Phone: "03001234567", Email: "ayesha@example.com", Address: "12 Canal Road, Lahore"}
	cart := domain.Cart{Lines: []domain.CartLine{
		{ProductID: 1, ProductName: "Sheet Set", ProductSlug: "sheet-set", UnitPrice: 2500, Quantity: 2},
	}}.Recompute()

	if err := notifier.NotifyOrder(context.Background(), buyer, cart, cart.Total); err != nil {
		t.Fatalf("NotifyOrder() error = %v", err)
	}
	if gotPath != "POST /send-email" {
		t.Fatalf("request = %q, want %q", gotPath, "POST /send-email")
	}
	if got.Purpose != "order" || got.TotalPrice != 5000 {
		t.Fatalf("payload = %+v", got)
	}
	if len(got.Products) != 1 || got.Products[0].Quantity != 2 {
		t.Fatalf("products = %+v", got.Products)
	}
}

func TestNotifyOrderSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL)
	err := notifier.NotifyOrder(context.Background(), domain.BuyerDetails{}, domain.Cart{}, 0)
	if err == nil {
		t.Fatal("NotifyOrder() error = nil, want non-nil")
	}
}
