package resilience

// Result is the outcome of a retried operation: either a value, or the last
// error seen once retries stopped.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int

	exhausted bool
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Exhausted reports whether every allowed attempt failed. A non-retryable
// error or a cancelled context stops early and is not exhausted.
func (r Result[T]) Exhausted() bool { return r.exhausted }
