package cache

// Policy configures the in-process tier.
type Policy struct {
	// MaxEntries bounds the number of cached entries.
	// If zero, the cache is unbounded and entries are never evicted.
	MaxEntries int
}

// DefaultPolicy returns the default policy: unbounded, no eviction.
func DefaultPolicy() Policy {
	return Policy{}
}

// BoundedPolicy returns a policy that keeps at most n entries.
func BoundedPolicy(n int) Policy {
	return Policy{MaxEntries: n}
}

// Bounded reports whether the policy caps the number of entries.
func (p Policy) Bounded() bool {
	return p.MaxEntries > 0
}

// New builds the cache described by the policy.
func New(p Policy) (Cache, error) {
	if p.Bounded() {
		return NewLRUCache(p.MaxEntries)
	}
	return NewMemoryCache(), nil
}
