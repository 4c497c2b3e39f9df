// Package cache provides the in-process metadata tier.
//
// It holds rendered metadata keyed by token hash for the life of the process.
// The default cache never evicts; a bounded LRU is available when memory must
// be capped, since an evicted entry is simply re-read from the durable store.
package cache
