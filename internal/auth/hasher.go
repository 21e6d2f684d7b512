package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SaltBytes is the number of random bytes in a generated salt.
const SaltBytes = 16

// HasherParams tunes the argon2id cost.
type HasherParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLength uint32
}

// DefaultHasherParams follows the RFC 9106 second recommended option.
var DefaultHasherParams = HasherParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4, KeyLength: 32}

// Hasher derives credential hashes from a password and an explicit salt.
type Hasher struct {
	params HasherParams
}

// NewHasher constructs a Hasher. Zero fields fall back to the defaults.
func NewHasher(params HasherParams) *Hasher {
	if params.Time == 0 {
		params.Time = DefaultHasherParams.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultHasherParams.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = DefaultHasherParams.Threads
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultHasherParams.KeyLength
	}
	return &Hasher{params: params}
}

// GenerateSalt returns SaltBytes of CSPRNG output, hex encoded.
func (h *Hasher) GenerateSalt() (string, error) {
	buf := make([]byte, SaltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash is deterministic for a given password, salt and parameter set.
func (h *Hasher) Hash(password, salt string) string {
	key := argon2.IDKey([]byte(password), []byte(salt), h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLength)
	return hex.EncodeToString(key)
}

// Verify recomputes the hash and compares it in constant time.
func (h *Hasher) Verify(password, salt, expected string) bool {
	actual := h.Hash(password, salt)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}
