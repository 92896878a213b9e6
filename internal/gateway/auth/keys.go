package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	keyPrefix    = "llmgw_"
	keyAlphabet  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyRandomLen = 32
)

// GenerateKey returns a new raw API key: a fixed prefix plus 32 random
// alphanumerics. The raw key is shown to the caller exactly once; only
// its hash is stored.
func GenerateKey() (string, error) {
	buf := make([]byte, 0, len(keyPrefix)+keyRandomLen)
	buf = append(buf, keyPrefix...)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < keyRandomLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		buf = append(buf, keyAlphabet[n.Int64()])
	}
	return string(buf), nil
}

// HashKey returns the hex SHA-256 digest stored in place of raw keys.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the short fragment of a raw key that is safe to
// show in listings.
func DisplayPrefix(rawKey string) string {
	if len(rawKey) <= 12 {
		return rawKey
	}
	return rawKey[:12]
}
