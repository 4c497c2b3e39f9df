// Package resilience provides the access-control and startup patterns used
// around the render resource and its stores.
//
//   - Guard: scoped, never-rejecting access to a resource with fixed capacity.
//     With the default capacity of one it serializes all holders; waiters
//     block until the holder releases or their context ends.
//
//   - Retry: exponential backoff with jitter for startup probes.
//
// # Usage
//
//	guard := resilience.NewGuard(resilience.GuardConfig{})
//	if _, err := guard.Acquire(ctx); err != nil {
//	    return err
//	}
//	defer guard.Release()
//
//	err := resilience.Retry(ctx, resilience.RetryConfig{MaxAttempts: 5}, store.Ping)
package resilience
