package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthorized is returned when a service API key is missing or unknown.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrKeyNotFound is returned by a Repository that has no key with the
	// given hash.
	ErrKeyNotFound = errors.New("api key not found")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// KeyVerifier authenticates callers by HMAC-SHA256 hashed API keys.
type KeyVerifier struct {
	apikeys Repository
	pepper  []byte
}

// NewKeyVerifier creates a KeyVerifier with the given API key repository and
// HMAC pepper.
func NewKeyVerifier(apikeys Repository, pepper []byte) *KeyVerifier {
	return &KeyVerifier{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashKey returns the hex-encoded HMAC-SHA256 of key under pepper, the form
// in which keys are stored.
func HashKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify hashes key, looks it up and compares the stored hash in constant
// time. Unknown keys yield ErrUnauthorized, storage failures are returned
// wrapped so they are not mistaken for bad credentials.
func (v *KeyVerifier) Verify(ctx context.Context, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hexHash := HashKey(key, v.pepper)

	info, err := v.apikeys.FindByHash(ctx, hexHash)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup api key")
	}

	storedBytes, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	hash, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}
