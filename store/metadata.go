package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// MetadataKeyPrefix prefixes every metadata key.
const MetadataKeyPrefix = "metadata_"

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned by ArtifactStore.Read when the file is absent.
	ErrNotFound = errors.New("store: not found")

	// ErrMalformedValue is returned when a stored metadata value is not valid JSON.
	ErrMalformedValue = errors.New("store: stored metadata is not valid JSON")

	// ErrInvalidMetadata is returned when Set is given bytes that are not a
	// non-null JSON value.
	ErrInvalidMetadata = errors.New("store: metadata is not valid JSON")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// MetadataKey returns the store key for a token id.
func MetadataKey(tokenID string) string {
	return MetadataKeyPrefix + tokenID
}

// MetadataStore is durable key/value persistence for rendered metadata,
// keyed by token id.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Get returns (nil, false, nil) on a missing key, and ErrMalformedValue
//   (wrapped) when the stored bytes do not parse as JSON. A stored JSON null
//   is reported as a miss.
// - Set rejects values that are not valid JSON, or are null, with
//   ErrInvalidMetadata.
type MetadataStore interface {
	Get(ctx context.Context, tokenID string) (json.RawMessage, bool, error)
	Set(ctx context.Context, tokenID string, value json.RawMessage) error
	Ping(ctx context.Context) error
	Close() error
}

func decodeStored(key string, raw []byte) (json.RawMessage, bool, error) {
	if !json.Valid(raw) {
		return nil, false, &MalformedValueError{Key: key}
	}
	if isNull(raw) {
		return nil, false, nil
	}
	return json.RawMessage(raw), true, nil
}

func checkValue(value json.RawMessage) error {
	if !json.Valid(value) || isNull(value) {
		return ErrInvalidMetadata
	}
	return nil
}

func isNull(raw []byte) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// MalformedValueError reports which key held unparseable bytes.
type MalformedValueError struct {
	Key string
}

func (e *MalformedValueError) Error() string {
	return ErrMalformedValue.Error() + ": " + e.Key
}

func (e *MalformedValueError) Unwrap() error {
	return ErrMalformedValue
}
