package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryMetadataStore keeps metadata in a map. It is durable only for the
// life of the process and is meant for tests and single-node development.
type MemoryMetadataStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{values: make(map[string][]byte)}
}

func (s *MemoryMetadataStore) Get(_ context.Context, tokenID string) (json.RawMessage, bool, error) {
	key := MetadataKey(tokenID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	raw, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return decodeStored(key, append([]byte(nil), raw...))
}

func (s *MemoryMetadataStore) Set(_ context.Context, tokenID string, value json.RawMessage) error {
	if err := checkValue(value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.values[MetadataKey(tokenID)] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryMetadataStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryMetadataStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ MetadataStore = (*MemoryMetadataStore)(nil)
