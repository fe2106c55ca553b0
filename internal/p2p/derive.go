// ABOUTME: Deterministic per-agent key derivation from a shared seed
// ABOUTME: HMAC-SHA256 over a domain-separated label, retried until a valid scalar appears

package p2p

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DefaultDerivationDomain separates messaging-identity keys from any other
// use of the same seed.
const DefaultDerivationDomain = "xmtp-uaid-v1"

// maxDerivationAttempts bounds the rejection-sampling loop. A failure here is
// astronomically unlikely with a real seed.
const maxDerivationAttempts = 8

// NormalizeSeed turns arbitrary seed material into exactly 32 bytes:
// a 64-character hex string (0x-prefixed or not) decodes directly, base64
// yielding at least 32 bytes is truncated to the first 32, and anything else
// is hashed with SHA-256.
func NormalizeSeed(seed string) []byte {
	trimmed := strings.TrimSpace(seed)
	hexPart := strings.TrimPrefix(trimmed, "0x")
	if len(hexPart) == 64 {
		if raw, err := hex.DecodeString(hexPart); err == nil {
			return raw
		}
	}
	if raw, err := base64.StdEncoding.DecodeString(trimmed); err == nil && len(raw) >= 32 {
		return raw[:32]
	}
	sum := sha256.Sum256([]byte(trimmed))
	return sum[:]
}

// DeriveKey derives the messaging private key for one agent from shared seed
// material. The derivation is deterministic: the same seed, domain, and UAID
// always produce the same key, and distinct UAIDs produce unrelated keys.
// Candidates that fall outside the curve order are skipped by bumping an
// attempt counter.
func DeriveKey(seed []byte, uaid, domain string) (*secp256k1.PrivateKey, error) {
	if uaid == "" {
		return nil, fmt.Errorf("key derivation requires a UAID")
	}
	if domain == "" {
		domain = DefaultDerivationDomain
	}
	for attempt := 0; attempt < maxDerivationAttempts; attempt++ {
		mac := hmac.New(sha256.New, seed)
		fmt.Fprintf(mac, "%s:%s:%d", domain, uaid, attempt)
		candidate := mac.Sum(nil)

		var scalar secp256k1.ModNScalar
		overflow := scalar.SetByteSlice(candidate)
		if overflow || scalar.IsZero() {
			continue
		}
		return secp256k1.NewPrivateKey(&scalar), nil
	}
	return nil, fmt.Errorf("no valid key after %d derivation attempts for %q", maxDerivationAttempts, uaid)
}
