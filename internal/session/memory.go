// ABOUTME: In-memory implementation of the session cache Store interface
// ABOUTME: Used by tests and ephemeral runs where durability is not needed

package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory session cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get returns the cached record for a target key, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, targetKey string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[targetKey]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

// Put upserts the record for a target key.
func (s *MemoryStore) Put(ctx context.Context, targetKey, sessionID, agentName, transport string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agentName == "" {
		agentName = targetKey
	}
	now := time.Now().UTC()
	created := now
	if existing, ok := s.records[targetKey]; ok {
		created = existing.CreatedAt
	}
	s.records[targetKey] = &Record{
		SessionID:  sessionID,
		AgentName:  agentName,
		Transport:  transport,
		CreatedAt:  created,
		LastUsedAt: now,
	}
	return nil
}

// List returns all cached entries, most recently used first.
func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.records))
	for key, rec := range s.records {
		entries = append(entries, Entry{TargetKey: key, Record: *rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastUsedAt.After(entries[j].LastUsedAt)
	})
	return entries, nil
}

// Clear removes all cached entries.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
