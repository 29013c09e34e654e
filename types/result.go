package types

// ErrorKind classifies a failed operation.
type ErrorKind string

const (
	KindValidationFailed     ErrorKind = "validation_failed"
	KindDuplicateKey         ErrorKind = "duplicate_key"
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindInvalidRefreshToken  ErrorKind = "invalid_refresh_token"
	KindNotFound             ErrorKind = "not_found"
	KindInternal             ErrorKind = "internal"
)

// Failure is the error half of a Result.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Details lists every violated rule for validation failures.
	Details []string `json:"details,omitempty"`
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// Result carries either data or a failure, never both.
type Result[T any] struct {
	Data T        `json:"data,omitempty"`
	Err  *Failure `json:"error,omitempty"`
}

// Ok wraps a successful payload.
func Ok[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

// Fail wraps a failure.
func Fail[T any](failure *Failure) Result[T] {
	return Result[T]{Err: failure}
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}
