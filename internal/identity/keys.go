// ABOUTME: secp256k1 key handling for the local identity
// ABOUTME: Key parsing/generation, EVM-style checksummed addresses, and personal-message signing

package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*secp256k1.PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}
	return key, nil
}

// ParsePrivateKey parses a 64-hex-character private key, with or without a
// 0x prefix, and rejects scalars outside the curve order.
func ParsePrivateKey(input string) (*secp256k1.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(input), "0x")
	if len(trimmed) != 64 {
		return nil, fmt.Errorf("invalid private key: expected 64 hex characters")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("invalid private key: scalar out of range")
	}
	return secp256k1.NewPrivateKey(&scalar), nil
}

// EncodePrivateKey returns the 0x-prefixed hex form of a private key.
func EncodePrivateKey(key *secp256k1.PrivateKey) string {
	return "0x" + hex.EncodeToString(key.Serialize())
}

// AddressFromKey derives the EVM-style address for a key: the last 20 bytes
// of the Keccak-256 hash of the uncompressed public key, EIP-55 checksummed.
func AddressFromKey(key *secp256k1.PrivateKey) string {
	pub := key.PubKey().SerializeUncompressed()
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(pub[1:]) // drop the 0x04 format byte
	digest := hasher.Sum(nil)
	return checksumAddress(digest[12:])
}

// checksumAddress applies EIP-55 mixed-case checksumming to a 20-byte address.
func checksumAddress(addr []byte) string {
	lower := hex.EncodeToString(addr)

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lower))
	hashHex := hex.EncodeToString(hasher.Sum(nil))

	out := make([]byte, len(lower))
	for i := range lower {
		c := lower[i]
		if c >= 'a' && c <= 'f' && hashHex[i] >= '8' {
			c = c - 'a' + 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// SignPersonalMessage signs a message using the EVM personal-message scheme:
// keccak256("\x19Ethereum Signed Message:\n" + len + message), returning the
// 0x-prefixed 65-byte r||s||v signature with v in {27, 28}.
func SignPersonalMessage(key *secp256k1.PrivateKey, message string) string {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(prefixed))
	digest := hasher.Sum(nil)

	// SignCompact returns v||r||s; EVM wire order is r||s||v.
	compact := ecdsa.SignCompact(key, digest, false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]

	return "0x" + hex.EncodeToString(sig)
}
