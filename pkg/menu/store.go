// Package menu distributes runtime trigger menus. Events only carry a menu
// version; the names behind a version are published once and looked up here.
package menu

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownMenu is returned when no names were published for a version.
var ErrUnknownMenu = errors.New("unknown trigger menu version")

// Store resolves a menu version to its trigger names.
type Store interface {
	Names(ctx context.Context, version string) ([]string, error)
}

// Announcement is a published menu, as sent on the update channel.
type Announcement struct {
	Version string   `json:"version"`
	Names   []string `json:"names"`
}

// MemoryStore keeps menus in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	menus map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{menus: make(map[string][]string)}
}

// Put stores names under version, replacing any previous list.
func (s *MemoryStore) Put(version string, names []string) {
	cp := make([]string, len(names))
	copy(cp, names)
	s.mu.Lock()
	s.menus[version] = cp
	s.mu.Unlock()
}

func (s *MemoryStore) Names(_ context.Context, version string) ([]string, error) {
	s.mu.RLock()
	names, ok := s.menus[version]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownMenu
	}
	return names, nil
}

// Len is the number of stored menus.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.menus)
}

// CachedStore answers from memory and falls back to a backing store,
// remembering what it fetched. Menus are immutable per version, so entries
// never expire.
type CachedStore struct {
	cache   *MemoryStore
	backing Store
}

func NewCachedStore(cache *MemoryStore, backing Store) *CachedStore {
	return &CachedStore{cache: cache, backing: backing}
}

func (s *CachedStore) Names(ctx context.Context, version string) ([]string, error) {
	names, err := s.cache.Names(ctx, version)
	if err == nil {
		return names, nil
	}
	if s.backing == nil {
		return nil, err
	}
	names, err = s.backing.Names(ctx, version)
	if err != nil {
		return nil, err
	}
	s.cache.Put(version, names)
	return names, nil
}
