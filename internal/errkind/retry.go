package errkind

// RetryOnce runs fn, and if it fails, runs it exactly one more time before
// giving up. Store read paths use this so a single transient StoreIOError
// does not surface immediately, matching the "retried once on read"
// propagation rule.
func RetryOnce(fn func() error) error {
	if err := fn(); err == nil {
		return nil
	}
	return fn()
}
