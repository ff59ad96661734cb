package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// IDPrefix starts every token ID.
	IDPrefix = "aisum_tok_"

	// SecretPrefix starts every secret handed to clients.
	SecretPrefix = "aisum_sk_" // #nosec G101 -- a prefix, not a credential

	// PrefixLength is how many secret characters are stored in clear for lookup.
	PrefixLength = 8

	idBytes     = 8
	secretBytes = 32
)

// hashCost is the bcrypt work factor.
var hashCost = 12

// GenerateID returns a new token ID: aisum_tok_<16 hex chars>.
func GenerateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}
	return IDPrefix + hex.EncodeToString(b), nil
}

// GenerateSecret returns a new secret and the prefix stored for lookup.
func GenerateSecret() (secret, prefix string, err error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	h := hex.EncodeToString(b)
	return SecretPrefix + h, h[:PrefixLength], nil
}

// HashSecret bcrypt-hashes the random part of secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimPrefix(secret, SecretPrefix)), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret checks secret against a stored hash.
func VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimPrefix(secret, SecretPrefix))) == nil
}

// LookupPrefix extracts the stored prefix from a presented secret.
func LookupPrefix(secret string) string {
	s := strings.TrimPrefix(secret, SecretPrefix)
	if len(s) < PrefixLength {
		return s
	}
	return s[:PrefixLength]
}

// MaskSecret returns a display-safe form such as aisum_sk_a1b2c3d4****.
func MaskSecret(secret string) string {
	if !strings.HasPrefix(secret, SecretPrefix) || len(secret) < len(SecretPrefix)+PrefixLength {
		return "****"
	}
	return secret[:len(SecretPrefix)+PrefixLength] + "****"
}
