package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Cache is the in-process metadata tier, keyed by token hash.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Ownership: Set stores a private copy; values returned by Get must not be mutated.
// - Errors: Get never errors; it returns (nil, false) on miss.
type Cache interface {
	// Get retrieves cached metadata. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) (json.RawMessage, bool)

	// Set stores metadata, replacing any previous value.
	Set(ctx context.Context, key string, value json.RawMessage)

	// Len reports the number of cached entries.
	Len() int
}

// ValidateKey checks that a key is usable both as a cache key and as a
// filename stem in the artifact directory.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r/\\\x00") {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, ".") {
		return ErrInvalidKey
	}
	return nil
}

func clone(value json.RawMessage) json.RawMessage {
	if value == nil {
		return nil
	}
	out := make(json.RawMessage, len(value))
	copy(out, value)
	return out
}
