package liveq

// Result is the exhaustive outcome of a query as of one instant: loading,
// success, or error. Exactly one of the three flags is set, and data and
// error are never populated together.
type Result[T any] struct {
	IsLoading bool
	IsSuccess bool
	IsError   bool

	// Error is the human-readable failure message. Empty unless IsError.
	Error string

	// Data is the query payload. Zero unless IsSuccess.
	Data T
}

// deriveResult is the only constructor of Result values. It recomputes the
// three states from the engine's error and data cells after every mutation,
// so the flags cannot drift apart: an error always wins, data without an
// error is success, and everything else is still loading.
func deriveResult[T any](err error, data T, hasData bool) Result[T] {
	switch {
	case err != nil:
		return Result[T]{IsError: true, Error: errorMessage(err)}
	case hasData:
		return Result[T]{IsSuccess: true, Data: data}
	default:
		return Result[T]{IsLoading: true}
	}
}
