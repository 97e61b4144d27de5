package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/domain"
)

func newTestGuard(t *testing.T, transfer clientstore.Store) *Guard {
	t.Helper()
	guard, err := NewGuard(GuardDeps{Transfer: transfer})
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	return guard
}

func newTestIntents(t *testing.T, transfer, durable clientstore.Store) *Intents {
	t.Helper()
	intents, err := NewIntents(IntentsDeps{
		Transfer: transfer,
		Durable:  durable,
		Guard:    newTestGuard(t, transfer),
	})
	if err != nil {
		t.Fatalf("NewIntents() error = %v", err)
	}
	return intents
}

func sampleCart() domain.Cart {
	return domain.Cart{Lines: []domain.CartLine{
		{ProductID: 1, ProductName: "Sheet Set", ProductSlug: "sheet-set", UnitPrice: 2500, Quantity: 2, ImageURL: "/img/sheet.jpg"},
		{ProductID: 2, ProductName: "Pillow Pair", ProductSlug: "pillow-pair", UnitPrice: 800, Quantity: 1, ImageURL: "/img/pillow.jpg"},
	}}.Recompute()
}

func TestGuardRedeemIsOneShot(t *testing.T) {
	transfer := clientstore.NewMemoryStore()
	guard := newTestGuard(t, transfer)

	ctx := context.Background()
	if guard.Redeem(ctx, "profile-1") {
		t.Fatal("Redeem() = true before Arm")
	}
	if err := guard.Arm(ctx, "profile-1"); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	if !guard.Redeem(ctx, "profile-1") {
		t.Fatal("Redeem() = false after Arm")
	}
	if guard.Redeem(ctx, "profile-1") {
		t.Fatal("second Redeem() = true, token not consumed")
	}
}

func TestGuardScopesAreIndependent(t *testing.T) {
	transfer := clientstore.NewMemoryStore()
	guard := newTestGuard(t, transfer)

	ctx := context.Background()
	if err := guard.Arm(ctx, "profile-1"); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	if guard.Redeem(ctx, "profile-2") {
		t.Fatal("Redeem() leaked across scopes")
	}
	if !guard.Redeem(ctx, "profile-1") {
		t.Fatal("armed scope could not redeem")
	}
}

func TestDeclareCartArmsGuardAndResolves(t *testing.T) {
	transfer := clientstore.NewMemoryStore()
	intents := newTestIntents(t, transfer, clientstore.NewMemoryStore())

	ctx := context.Background()
	if err := intents.DeclareCart(ctx, "profile-1", sampleCart()); err != nil {
		t.Fatalf("DeclareCart() error = %v", err)
	}

	cart, provenance, err := intents.Resolve(ctx, "profile-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if provenance != ProvenanceCartIntent {
		t.Fatalf("provenance = %q, want %q", provenance, ProvenanceCartIntent)
	}
	if len(cart.Lines) != 2 || cart.Total != 5800 {
		t.Fatalf("resolved cart = %+v", cart)
	}

	guard := newTestGuard(t, transfer)
	if !guard.Redeem(ctx, "profile-1") {
		t.Fatal("guard not armed by DeclareCart")
	}
}

func TestCartIntentWinsOverBuyNow(t *testing.T) {
	transfer := clientstore.NewMemoryStore()
	intents := newTestIntents(t, transfer, clientstore.NewMemoryStore())

	ctx := context.Background()
	if err := intents.DeclareBuyNow(ctx, "profile-1", domain.Product{ID: 9, Name: "Comforter", Slug: "comforter", Price: 4000}, 1); err != nil {
		t.Fatalf("DeclareBuyNow() error = %v", err)
	}
	// Declaring the cart after buy-now must both win and clear the buy-now
	// keys, so re-write buy-now afterwards to force the conflict.
	if err := intents.DeclareCart(ctx, "profile-1", sampleCart()); err != nil {
		t.Fatalf("DeclareCart() error = %v", err)
	}
	if err := transfer.Set(ctx, "profile-1", clientstore.KeyBuyNow, `[{"product_id":9,"name":"Comforter","slug":"comforter","price":4000,"quantity":1}]`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	cart, provenance, err := intents.Resolve(ctx, "profile-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if provenance != ProvenanceCartIntent {
		t.Fatalf("provenance = %q, want cart intent to win", provenance)
	}
	if cart.Total != 5800 {
		t.Fatalf("total = %d, want 5800", cart.Total)
	}
}

func TestDeclareCartClearsStaleBuyNow(t *testing.T) {
	transfer := clientstore.NewMemoryStore()
	intents := newTestIntents(t, transfer, clientstore.NewMemoryStore())

	ctx := context.Background()
	if err := intents.DeclareBuyNow(ctx, "profile-1", domain.Product{ID: 9, Name: "Comforter", Price: 4000}, 1); err != nil {
		t.Fatalf("DeclareBuyNow() error = %v", err)
	}
	if err := intents.DeclareCart(ctx, "profile-1", sampleCart()); err != nil {
		t.Fatalf("DeclareCart() error = %v", err)
	}
	if _, ok, _ := transfer.Get(ctx, "profile-1", clientstore.KeyBuyNow); ok {
		t.Fatal("buy-now key survived DeclareCart")
	}
}

func TestResolveFallsBackToBuyNowThenLegacy(t *testing.T) {
	transfer := clientstore.NewMemoryStore()
	durable := clientstore.NewMemoryStore()
	intents := newTestIntents(t, transfer, durable)

	ctx := context.Background()
	if err := durable.Set(ctx, "profile-1", clientstore.KeyLegacyCart, `[{"product_id":5,"name":"Old Throw","slug":"old-throw","price":1200,"quantity":1}]`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	cart, provenance, err := intents.Resolve(ctx, "profile-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if provenance != ProvenanceLegacy || cart.Total != 1200 {
		t.Fatalf("resolved = %q/%+v, want legacy cart", provenance, cart)
	}

	if err := intents.DeclareBuyNow(ctx, "profile-1", domain.Product{ID: 9, Name: "Comforter", Slug: "comforter", Price: 4000}, 2); err != nil {
		t.Fatalf("DeclareBuyNow() error = %v", err)
	}
	cart, provenance, err = intents.Resolve(ctx, "profile-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if provenance != ProvenanceBuyNow || cart.Total != 8000 {
		t.Fatalf("resolved = %q/%+v, want buy-now", provenance, cart)
	}
}

func TestResolveEmptyEverywhere(t *testing.T) {
	intents := newTestIntents(t, clientstore.NewMemoryStore(), clientstore.NewMemoryStore())
	cart, provenance, err := intents.Resolve(context.Background(), "profile-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if provenance != ProvenanceNone || !cart.Empty() {
		t.Fatalf("resolved = %q/%+v, want none/empty", provenance, cart)
	}
}

func sampleBuyer() domain.BuyerDetails {
	return domain.BuyerDetails{
		Name:    "Ayesha Khan",
		Phone:   "03001234567",
		Email:   "ayesha@example.com",
		Address: "12 Canal Road, Lahore",
	}
}

func TestCommitThenRetrieveRoundTrips(t *testing.T) {
	transfer := clientstore.NewMemoryStore()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	session, err := NewSession(SessionDeps{Transfer: transfer, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	ctx := context.Background()
	if err := session.Commit(ctx, "profile-1", sampleBuyer(), sampleCart()); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	snapshot, err := session.Retrieve(ctx, "profile-1")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if snapshot.Buyer != sampleBuyer() {
		t.Fatalf("buyer = %+v", snapshot.Buyer)
	}
	if len(snapshot.Cart.Lines) != 2 || snapshot.Total != 5800 {
		t.Fatalf("snapshot = %+v", snapshot)
	}
	if !snapshot.CommittedAt.Equal(now) {
		t.Fatalf("committed at = %v, want %v", snapshot.CommittedAt, now)
	}
}

func TestSnapshotIsFrozenAgainstLaterCartChanges(t *testing.T) {
	transfer := clientstore.NewMemoryStore()
	session, err := NewSession(SessionDeps{Transfer: transfer})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	ctx := context.Background()
	cart := sampleCart()
	if err := session.Commit(ctx, "profile-1", sampleBuyer(), cart); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	// Another tab mutating its live cart must not leak into the snapshot.
	cart.Lines = cart.Lines[:1]
	cart = cart.Recompute()

	snapshot, err := session.Retrieve(ctx, "profile-1")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(snapshot.Cart.Lines) != 2 || snapshot.Total != 5800 {
		t.Fatalf("snapshot drifted: %+v", snapshot)
	}
}

func TestRetrieveFailsClosedWithoutSnapshot(t *testing.T) {
	session, err := NewSession(SessionDeps{Transfer: clientstore.NewMemoryStore()})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if _, err := session.Retrieve(context.Background(), "profile-1"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("Retrieve() error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestCommitRejectsIncompleteInput(t *testing.T) {
	session, err := NewSession(SessionDeps{Transfer: clientstore.NewMemoryStore()})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	ctx := context.Background()
	buyer := sampleBuyer()
	buyer.Address = "  "
	if err := session.Commit(ctx, "profile-1", buyer, sampleCart()); !errors.Is(err, ErrSnapshotInvalidInput) {
		t.Fatalf("Commit(no address) error = %v, want ErrSnapshotInvalidInput", err)
	}
	if err := session.Commit(ctx, "profile-1", sampleBuyer(), domain.Cart{}); !errors.Is(err, ErrSnapshotInvalidInput) {
		t.Fatalf("Commit(empty cart) error = %v, want ErrSnapshotInvalidInput", err)
	}
}
