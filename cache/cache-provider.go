// Package cache holds rendered pages keyed by request path.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is an interface for a page store.
// It maps cache keys to entries and knows nothing about HTTP semantics
// beyond the freshness windows carried by the entries themselves.
//
// Implementations must be thread-safe!
type Store interface {
	// Get returns the entry for the given key, if it exists.
	// Expired entries are still returned, deciding what to do with them is up to the caller.
	Get(key string) (Entry, bool)
	// Set stores the entry under the given key, replacing any previous entry.
	Set(key string, entry Entry)
	// Delete removes the entry for the given key.
	Delete(key string)
	// DeleteByPrefix removes every entry whose key starts with prefix.
	// It returns the number of removed entries.
	DeleteByPrefix(prefix string) int
	// Clear removes all entries.
	Clear()
	// Len returns the number of entries.
	Len() int
	// Keys returns all keys in sorted order.
	Keys() []string
	// TryMarkRefreshing sets the refreshing flag of the entry for key if the entry
	// is stale at now and not already refreshing. The check and the set happen atomically.
	// It returns the marked entry and whether the flag was set by this call.
	TryMarkRefreshing(key string, now time.Time) (Entry, bool)
	// ClearRefreshing resets the refreshing flag for key, but only if the stored entry
	// is still the one written at storedAt. A newer entry is left alone.
	ClearRefreshing(key string, storedAt time.Time)
}

type MemStore struct {
	mutex *sync.RWMutex
	db    map[string]Entry
}

// NewMemStore creates an empty in-memory store.
// The store lives as long as the process, there is nothing to close.
func NewMemStore() MemStore {
	return MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]Entry),
	}
}

func (m MemStore) Get(key string) (Entry, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok {
		return Entry{}, false
	}
	// body is read-only, only the header map needs protecting from callers
	entry.Header = entry.Header.Clone()
	return entry, true
}

func (m MemStore) Set(key string, entry Entry) {
	entry = entry.clone()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = entry
}

func (m MemStore) Delete(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
}

func (m MemStore) DeleteByPrefix(prefix string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	removed := 0
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			delete(m.db, key)
			removed++
		}
	}
	return removed
}

func (m MemStore) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	clear(m.db)
}

func (m MemStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db)
}

func (m MemStore) Keys() []string {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	sort.Strings(keys)
	return keys
}

func (m MemStore) TryMarkRefreshing(key string, now time.Time) (Entry, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok || entry.Refreshing || !entry.Stale(now) {
		return Entry{}, false
	}
	entry.Refreshing = true
	m.db[key] = entry
	entry.Header = entry.Header.Clone()
	return entry, true
}

func (m MemStore) ClearRefreshing(key string, storedAt time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok || !entry.StoredAt.Equal(storedAt) {
		return
	}
	entry.Refreshing = false
	m.db[key] = entry
}
