package offline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when a key is missing from a store.
	ErrNotFound = errors.New("cache: entry not found")

	// ErrStoreClosed is returned for operations on closed storage.
	ErrStoreClosed = errors.New("cache: storage closed")
)

// StoreInfo describes one named store for introspection.
type StoreInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Store is one named, versioned key-to-entry mapping. Writes replace whole
// entries; concurrent writers resolve by last write wins. Entries are never
// removed individually - a store only empties when Storage.Delete drops it
// as a unit.
type Store interface {
	Get(key string) (CacheEntry, error)
	Put(key string, ent CacheEntry) error
	Info() (StoreInfo, error)
}

// Storage is the persistence root: a set of named stores. Store materializes
// a name on first use so it shows up in Names even before its first entry.
type Storage interface {
	Store(name string) Store
	Names() ([]string, error)
	Delete(name string) error
	Close() error
}

func openStorage(cfg Config) (Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return newMemoryStorage(), nil
	case "leveldb", "":
		return openLevelStorage(cfg.Storage.Path)
	case "sqlite":
		return openSQLiteStorage(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ---- memory backend ----

type memoryStorage struct {
	mu     sync.RWMutex
	stores map[string]map[string]CacheEntry
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{stores: map[string]map[string]CacheEntry{}}
}

func (m *memoryStorage) Store(name string) Store {
	m.mu.Lock()
	if _, ok := m.stores[name]; !ok {
		m.stores[name] = map[string]CacheEntry{}
	}
	m.mu.Unlock()
	return &memoryStore{parent: m, name: name}
}

func (m *memoryStorage) Names() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.stores))
	for name := range m.stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStorage) Delete(name string) error {
	m.mu.Lock()
	delete(m.stores, name)
	m.mu.Unlock()
	return nil
}

func (m *memoryStorage) Close() error { return nil }

type memoryStore struct {
	parent *memoryStorage
	name   string
}

func (s *memoryStore) Get(key string) (CacheEntry, error) {
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	entries, ok := s.parent.stores[s.name]
	if !ok {
		return CacheEntry{}, ErrNotFound
	}
	ent, ok := entries[key]
	if !ok {
		return CacheEntry{}, ErrNotFound
	}
	body := make([]byte, len(ent.Body))
	copy(body, ent.Body)
	ent.Body = body
	ent.Header = cloneHeader(ent.Header)
	return ent, nil
}

func (s *memoryStore) Put(key string, ent CacheEntry) error {
	body := make([]byte, len(ent.Body))
	copy(body, ent.Body)
	ent.Body = body
	ent.Header = cloneHeader(ent.Header)

	s.parent.mu.Lock()
	entries, ok := s.parent.stores[s.name]
	if !ok {
		entries = map[string]CacheEntry{}
		s.parent.stores[s.name] = entries
	}
	entries[key] = ent
	s.parent.mu.Unlock()
	return nil
}

func (s *memoryStore) Info() (StoreInfo, error) {
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	info := StoreInfo{Name: s.name}
	for _, ent := range s.parent.stores[s.name] {
		info.Entries++
		info.Bytes += int64(len(ent.Body))
	}
	return info, nil
}
