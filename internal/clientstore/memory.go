package clientstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store. With a zero TTL it behaves as a durable
// store (tests, degraded startup); with a positive TTL it is the short-lived
// transfer store whose entries lapse like a closed tab's sessionStorage.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Scope]map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore constructs a durable in-memory store.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(0, time.Now)
}

// NewEphemeralStore constructs a short-lived in-memory store whose entries
// expire after ttl.
func NewEphemeralStore(ttl time.Duration) *MemoryStore {
	return newMemoryStore(ttl, time.Now)
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[Scope]map[string]memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

// WithClock overrides the store clock. Test hook.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		m.mu.Lock()
		m.now = now
		m.mu.Unlock()
	}
	return m
}

// Get returns the stored value and whether the key is present.
func (m *MemoryStore) Get(_ context.Context, scope Scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.entries[scope]
	if !ok {
		return "", false, nil
	}
	entry, ok := bucket[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(bucket, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores the value under the scope and key.
func (m *MemoryStore) Set(_ context.Context, scope Scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.entries[scope]
	if !ok {
		bucket = make(map[string]memoryEntry)
		m.entries[scope] = bucket
	}
	entry := memoryEntry{value: value}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	bucket[key] = entry
	return nil
}

// Delete removes the given keys; absent keys are not an error.
func (m *MemoryStore) Delete(_ context.Context, scope Scope, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.entries[scope]
	if !ok {
		return nil
	}
	for _, key := range keys {
		delete(bucket, key)
	}
	if len(bucket) == 0 {
		delete(m.entries, scope)
	}
	return nil
}
