// Package history keeps the set of items already published to a destination.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fbpage-agent/internal/storage"
)

// SettingKey is the settings row holding the serialized key array
const SettingKey = "publish_history"

// Key joins a source item identity with a destination identity
func Key(sourceID, destinationID string) string {
	return sourceID + "|" + destinationID
}

// Persister stores the full key list
type Persister interface {
	LoadKeys(ctx context.Context) ([]string, error)
	SaveKeys(ctx context.Context, keys []string) error
}

// Store is a grow-only set of history keys with write-through persistence
type Store struct {
	mu        sync.RWMutex
	keys      map[string]struct{}
	order     []string
	persister Persister
}

// New creates an empty store. A nil persister keeps the set in memory only.
func New(persister Persister) *Store {
	return &Store{
		keys:      make(map[string]struct{}),
		persister: persister,
	}
}

// Load creates a store from the persisted key list
func Load(ctx context.Context, persister Persister) (*Store, error) {
	s := New(persister)
	if persister == nil {
		return s, nil
	}
	keys, err := persister.LoadKeys(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to load history: %w", err)
	}
	for _, k := range keys {
		if _, ok := s.keys[k]; ok {
			continue
		}
		s.keys[k] = struct{}{}
		s.order = append(s.order, k)
	}
	return s, nil
}

// Has reports whether key was recorded
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Add records key and writes the whole set through to the persister.
// The in-memory set keeps the key even when the write fails.
func (s *Store) Add(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return nil
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)

	if s.persister == nil {
		return nil
	}
	snapshot := make([]string, len(s.order))
	copy(snapshot, s.order)
	if err := s.persister.SaveKeys(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist history: %w", err)
	}
	return nil
}

// Keys returns the recorded keys sorted
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	sort.Strings(keys)
	return keys
}

// Len returns the number of recorded keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// SettingsPersister stores the key list as a JSON array in a settings row
type SettingsPersister struct {
	repo storage.Repository
}

// NewSettingsPersister creates a persister backed by the settings table
func NewSettingsPersister(repo storage.Repository) *SettingsPersister {
	return &SettingsPersister{repo: repo}
}

func (p *SettingsPersister) LoadKeys(ctx context.Context) ([]string, error) {
	raw, err := p.repo.GetSetting(ctx, SettingKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", SettingKey, err)
	}
	return keys, nil
}

func (p *SettingsPersister) SaveKeys(ctx context.Context, keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return p.repo.SaveSetting(ctx, SettingKey, string(data))
}
