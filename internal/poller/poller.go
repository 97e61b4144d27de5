// Package poller watches a pending order for asynchronous merchant
// confirmation after a pay-then-confirm submission.
package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/domain"
)

const (
	defaultInterval = 5 * time.Second
	defaultMaxWait  = 30 * time.Minute
)

// Outcome is the reason a polling run stopped.
type Outcome string

const (
	// OutcomeConfirmed means the merchant confirmed the order.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeCancelled means the merchant cancelled the order.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeTimedOut means the ceiling elapsed with the order still
	// pending. Not an error: the merchant may still confirm later through
	// the external system.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeStopped means the run was cancelled by its context.
	OutcomeStopped Outcome = "stopped"
)

// Status fetches the current status of an order.
type Status interface {
	OrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error)
}

// PollerDeps bundles collaborators required to construct a poller.
type PollerDeps struct {
	Status   Status
	Interval time.Duration
	MaxWait  time.Duration
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Poller repeatedly checks an order's status at a fixed interval until the
// order reaches a terminal state, the ceiling elapses, or the context is
// cancelled. Each tick awaits the previous request, so at most one check is
// ever in flight.
type Poller struct {
	status   Status
	interval time.Duration
	maxWait  time.Duration
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewPoller constructs a poller.
func NewPoller(deps PollerDeps) (*Poller, error) {
	if deps.Status == nil {
		return nil, errors.New("poller: status client is required")
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	maxWait := deps.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Poller{status: deps.Status, interval: interval, maxWait: maxWait, logger: logger}, nil
}

// Run blocks until the order confirms, the ceiling elapses, or ctx is
// cancelled. Transient status-check failures are logged and retried on the
// next tick.
func (p *Poller) Run(ctx context.Context, orderID string) (Outcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OutcomeStopped, errors.New("poller: order id is required")
	}

	ceiling := time.NewTimer(p.maxWait)
	defer ceiling.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return OutcomeStopped, ctx.Err()
		case <-ceiling.C:
			p.logger(ctx, "poller.timed_out", map[string]any{"order_id": orderID})
			return OutcomeTimedOut, nil
		case <-ticker.C:
			status, err := p.status.OrderStatus(ctx, orderID)
			if err != nil {
				if ctx.Err() != nil {
					return OutcomeStopped, ctx.Err()
				}
				p.logger(ctx, "poller.check_failed", map[string]any{"order_id": orderID, "error": err.Error()})
				continue
			}
			switch status {
			case domain.OrderStatusConfirmed:
				p.logger(ctx, "poller.confirmed", map[string]any{"order_id": orderID})
				return OutcomeConfirmed, nil
			case domain.OrderStatusCancelled:
				p.logger(ctx, "poller.cancelled", map[string]any{"order_id": orderID})
				return OutcomeCancelled, nil
			}
		}
	}
}

// Tracking clears the pending-order id once a watch finishes.
type Tracking interface {
	ClearTracking(ctx context.Context, scope clientstore.Scope)
}

// WatchState is the externally visible state of a tracked order.
type WatchState struct {
	OrderID string
	Polling bool
	Outcome Outcome
}

type watch struct {
	orderID string
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	polling bool
	outcome Outcome
}

// TrackerDeps bundles collaborators required to construct a tracker.
type TrackerDeps struct {
	Poller   *Poller
	Tracking Tracking
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Tracker runs at most one polling goroutine per scope and exposes its
// progress. Confirmed and cancelled outcomes drop the persisted tracking id;
// a timed-out watch keeps it, since the order is still pending.
type Tracker struct {
	poller   *Poller
	tracking Tracking
	logger   func(ctx context.Context, event string, fields map[string]any)

	mu      sync.Mutex
	watches map[clientstore.Scope]*watch
}

// NewTracker constructs a tracker.
func NewTracker(deps TrackerDeps) (*Tracker, error) {
	if deps.Poller == nil {
		return nil, errors.New("poller tracker: poller is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Tracker{
		poller:   deps.Poller,
		tracking: deps.Tracking,
		logger:   logger,
		watches:  make(map[clientstore.Scope]*watch),
	}, nil
}

// Watch starts polling the order for the scope. A watch already running for
// the same order is left alone; a watch for a different order is replaced.
func (t *Tracker) Watch(scope clientstore.Scope, orderID string) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return
	}

	t.mu.Lock()
	if existing, ok := t.watches[scope]; ok {
		existing.mu.Lock()
		same := existing.orderID == orderID && existing.polling
		existing.mu.Unlock()
		if same {
			t.mu.Unlock()
			return
		}
		existing.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &watch{orderID: orderID, cancel: cancel, done: make(chan struct{}), polling: true}
	t.watches[scope] = w
	t.mu.Unlock()

	go func() {
		defer close(w.done)
		outcome, _ := t.poller.Run(ctx, orderID)

		w.mu.Lock()
		w.polling = false
		w.outcome = outcome
		w.mu.Unlock()

		if t.tracking != nil && (outcome == OutcomeConfirmed || outcome == OutcomeCancelled) {
			t.tracking.ClearTracking(context.Background(), scope)
		}
	}()
}

// Cancel stops the scope's watch, if any, without side effects.
func (t *Tracker) Cancel(scope clientstore.Scope) {
	t.mu.Lock()
	w, ok := t.watches[scope]
	if ok {
		delete(t.watches, scope)
	}
	t.mu.Unlock()
	if ok {
		w.cancel()
		<-w.done
	}
}

// State reports the scope's watch progress.
func (t *Tracker) State(scope clientstore.Scope) (WatchState, bool) {
	t.mu.Lock()
	w, ok := t.watches[scope]
	t.mu.Unlock()
	if !ok {
		return WatchState{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return WatchState{OrderID: w.orderID, Polling: w.polling, Outcome: w.outcome}, true
}
