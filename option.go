package pantry

// Option represents a value that may be absent, similar to Rust's Option
// type. Read operations return an Option alongside an error so that a
// cache miss, a caller mistake and a degraded store stay distinguishable.
type Option[T any] struct {
	value T
	ok    bool
}

// Some creates an Option holding value.
func Some[T any](value T) Option[T] {
	return Option[T]{value: value, ok: true}
}

// None creates an empty Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Ok returns true if the Option holds a value.
func (o Option[T]) Ok() bool {
	return o.ok
}

// Value returns the held value, or the zero value when the Option is
// empty.
func (o Option[T]) Value() T {
	return o.value
}

// Get returns the held value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Or returns the held value, or def when the Option is empty.
func (o Option[T]) Or(def T) T {
	if o.ok {
		return o.value
	}
	return def
}
