package claimsx

// Result is the outcome of an authorization decision: either Ok with a
// value or Err with a code. A failed Result never carries a partial value.
type Result[T any] struct {
	value T
	code  ErrorCode
	ok    bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Fail returns a failed Result with the given code.
func Fail[T any](code ErrorCode) Result[T] {
	return Result[T]{code: code}
}

// OK reports whether the Result succeeded.
func (r Result[T]) OK() bool {
	return r.ok
}

// Value returns the wrapped value, or the zero value on failure.
func (r Result[T]) Value() T {
	return r.value
}

// Code returns the failure code; empty on success.
func (r Result[T]) Code() ErrorCode {
	return r.code
}

// Err converts a failed Result into an *Error; nil on success.
func (r Result[T]) Err() error {
	if r.ok {
		return nil
	}
	return newError(r.code, nil)
}
