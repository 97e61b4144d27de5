// Package session mints and persists the anonymous shopper identity that
// attributes server order rows to a browser profile.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/InfernusReal/beddingstore/internal/clientstore"
)

const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// IdentityDeps bundles collaborators required to construct an identity
// service instance.
type IdentityDeps struct {
	Store  clientstore.Store
	Clock  func() time.Time
	Rand   *rand.Rand
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// Identity hands out the per-profile session id, minting one on first use.
type Identity struct {
	store  clientstore.Store
	clock  func() time.Time
	rand   *rand.Rand
	logger func(ctx context.Context, event string, fields map[string]any)

	mu       sync.Mutex
	fallback map[clientstore.Scope]string
}

// NewIdentity constructs an identity service on top of the durable client
// store.
func NewIdentity(deps IdentityDeps) (*Identity, error) {
	if deps.Store == nil {
		return nil, errors.New("session identity: store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(clock().UnixNano()))
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Identity{
		store:    deps.Store,
		clock:    clock,
		rand:     rng,
		logger:   logger,
		fallback: make(map[clientstore.Scope]string),
	}, nil
}

// GetOrCreate returns the session id for the scope, minting and persisting a
// fresh one when none exists. It never fails: when the durable store is
// unavailable the id is held in memory for the life of the process, so
// downstream order attribution keeps working at the cost of durability.
func (i *Identity) GetOrCreate(ctx context.Context, scope clientstore.Scope) string {
	if existing, ok, err := i.store.Get(ctx, scope, clientstore.KeySessionID); err == nil && ok {
		if id := strings.TrimSpace(existing); id != "" {
			return id
		}
	} else if err != nil {
		i.logger(ctx, "session.store_read_failed", map[string]any{"scope": string(scope), "error": err.Error()})
	}

	i.mu.Lock()
	if id, ok := i.fallback[scope]; ok {
		i.mu.Unlock()
		return id
	}
	id := i.mint()
	i.fallback[scope] = id
	i.mu.Unlock()

	if err := i.store.Set(ctx, scope, clientstore.KeySessionID, id); err != nil {
		i.logger(ctx, "session.store_write_failed", map[string]any{"scope": string(scope), "error": err.Error()})
	}

	i.logger(ctx, "session.created", map[string]any{"scope": string(scope), "session_id": id})
	return id
}

// mint builds a new session id: the epoch millis plus a 9 character base36
// suffix. The format is load-bearing; the Order API stores it verbatim in the
// user_session column.
func (i *Identity) mint() string {
	var sb strings.Builder
	sb.Grow(9)
	for idx := 0; idx < 9; idx++ {
		sb.WriteByte(sessionIDAlphabet[i.rand.Intn(len(sessionIDAlphabet))])
	}
	return fmt.Sprintf("user_%d_%s", i.clock().UnixMilli(), sb.String())
}
