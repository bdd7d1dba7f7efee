// Package fn holds the small generic toolkit the ingestion and query
// pipelines are composed from: a Result type, context-aware stages,
// retries and a few slice helpers.
package fn

// Result carries either a value or the error that prevented it.
type Result[T any] struct {
	val T
	err error
	ok  bool
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] { return Result[T]{val: v, ok: true} }

// Err wraps a failure. The value is T's zero value.
func Err[T any](err error) Result[T] { return Result[T]{err: err} }

// FromPair turns a conventional (value, error) return into a Result.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsErr reports whether r is a failure.
func (r Result[T]) IsErr() bool { return !r.ok }

// Unwrap returns the value and error.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }
