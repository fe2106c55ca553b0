// ABOUTME: Local session cache contract and data types
// ABOUTME: Maps target keys (UAID or agent URL) to last-known remote session metadata

package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no cached session exists for a target key.
var ErrNotFound = errors.New("session not found")

// Record is the cached metadata for a remote chat session. An empty Transport
// means no explicit transport was negotiated and the server default applied.
type Record struct {
	SessionID  string
	AgentName  string
	Transport  string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Entry pairs a cache record with its target key for listings.
type Entry struct {
	TargetKey string
	Record
}

// Store is the persistence contract for the session cache. A Put followed by
// a Get in the same process returns the written value; durability beyond that
// is an implementation detail. No cross-process locking is provided.
type Store interface {
	// Get returns the cached record for a target key, or ErrNotFound.
	Get(ctx context.Context, targetKey string) (*Record, error)

	// Put upserts the record for a target key. CreatedAt is preserved for
	// existing entries; LastUsedAt is always refreshed.
	Put(ctx context.Context, targetKey, sessionID, agentName, transport string) error

	// List returns all cached entries, most recently used first.
	List(ctx context.Context) ([]Entry, error)

	// Clear removes all cached entries.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
