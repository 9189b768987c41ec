package ir

// ReadState tags the outcome of reading a persisted value.
type ReadState int

const (
	// ReadEmpty means nothing is stored under the key.
	ReadEmpty ReadState = iota
	// ReadFound means the value was present and decoded.
	ReadFound
	// ReadCorrupt means bytes were present but could not be decoded.
	ReadCorrupt
)

func (s ReadState) String() string {
	switch s {
	case ReadFound:
		return "found"
	case ReadCorrupt:
		return "corrupt"
	default:
		return "empty"
	}
}

// Result distinguishes "nothing there" from "something there but
// unreadable". Value is meaningful only when State is ReadFound; Err is set
// only when State is ReadCorrupt and carries the decode failure.
type Result[T any] struct {
	State ReadState
	Value T
	Err   error
}

// Found wraps a decoded value.
func Found[T any](v T) Result[T] {
	return Result[T]{State: ReadFound, Value: v}
}

// Empty reports an absent key.
func Empty[T any]() Result[T] {
	return Result[T]{State: ReadEmpty}
}

// Corrupt reports undecodable bytes.
func Corrupt[T any](err error) Result[T] {
	return Result[T]{State: ReadCorrupt, Err: err}
}

// OK reports whether a value was found.
func (r Result[T]) OK() bool {
	return r.State == ReadFound
}
