// ABOUTME: Local cryptographic identity record and its persistence contract
// ABOUTME: Tracks address, signing key, claimed agents, and the base-URL-scoped API key

package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when no identity has been created yet.
var ErrNotFound = errors.New("identity not found")

// Identity is the caller's local cryptographic identity. The private key is
// the master secret: it signs ledger challenges and seeds p2p key derivation.
type Identity struct {
	Address       string    `json:"address"`
	PrivateKey    string    `json:"privateKey"`
	CreatedAt     time.Time `json:"createdAt"`
	Chain         string    `json:"chain"`
	ClaimedAgents []string  `json:"claimedAgents"`
	Imported      bool      `json:"imported,omitempty"`
	APIKey        string    `json:"apiKey,omitempty"`
	APIKeyBaseURL string    `json:"apiKeyBaseUrl,omitempty"`
}

// APIKeyFor returns the cached API key if it is scoped to the given base URL,
// or empty. A key recorded for a different broker must be treated as absent.
func (id *Identity) APIKeyFor(baseURL string) string {
	if id == nil || id.APIKey == "" {
		return ""
	}
	if id.APIKeyBaseURL != "" && id.APIKeyBaseURL != baseURL {
		return ""
	}
	return id.APIKey
}

// HasClaimed reports whether the identity has claimed the given UAID.
// Ownership comparisons are case-insensitive.
func (id *Identity) HasClaimed(uaid string) bool {
	target := strings.ToLower(uaid)
	for _, claimed := range id.ClaimedAgents {
		if strings.ToLower(claimed) == target {
			return true
		}
	}
	return false
}

// AddClaim records a claimed UAID, ignoring duplicates.
func (id *Identity) AddClaim(uaid string) {
	if id.HasClaimed(uaid) {
		return
	}
	id.ClaimedAgents = append(id.ClaimedAgents, uaid)
}

// DefaultSenderUAID returns the first claimed UAID, preferring one that is
// not the excluded recipient. Empty when nothing is claimed.
func (id *Identity) DefaultSenderUAID(exclude string) string {
	if id == nil || len(id.ClaimedAgents) == 0 {
		return ""
	}
	if exclude != "" {
		for _, claimed := range id.ClaimedAgents {
			if claimed != exclude {
				return claimed
			}
		}
	}
	return id.ClaimedAgents[0]
}

// Store is the persistence contract for the identity record.
type Store interface {
	Load() (*Identity, error)
	Save(*Identity) error
}

// FileStore persists the identity as owner-only JSON.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed identity store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: slog.Default().With("component", "identity"),
	}
}

// Load reads the identity record. Returns ErrNotFound when absent.
func (s *FileStore) Load() (*Identity, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("parsing identity file: %w", err)
	}
	return &id, nil
}

// Save writes the identity record with owner-only permissions.
func (s *FileStore) Save(id *Identity) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	return nil
}

// Import builds and persists an identity from an externally-supplied private key.
func Import(store Store, keyInput string) (*Identity, error) {
	key, err := ParsePrivateKey(keyInput)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		Address:       AddressFromKey(key),
		PrivateKey:    EncodePrivateKey(key),
		CreatedAt:     time.Now().UTC(),
		Chain:         "evm",
		ClaimedAgents: []string{},
		Imported:      true,
	}
	if err := store.Save(id); err != nil {
		return nil, err
	}
	return id, nil
}

// GetOrCreate loads the existing identity, or creates one on first use.
// HOL_PRIVATE_KEY, when set, seeds the new identity instead of a random key.
func GetOrCreate(store Store) (*Identity, error) {
	existing, err := store.Load()
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if envKey := strings.TrimSpace(os.Getenv("HOL_PRIVATE_KEY")); envKey != "" {
		slog.Info("importing identity from HOL_PRIVATE_KEY")
		return Import(store, envKey)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	id := &Identity{
		Address:       AddressFromKey(key),
		PrivateKey:    EncodePrivateKey(key),
		CreatedAt:     time.Now().UTC(),
		Chain:         "evm",
		ClaimedAgents: []string{},
	}
	if err := store.Save(id); err != nil {
		return nil, err
	}
	slog.Info("created new identity", "address", id.Address)
	return id, nil
}
