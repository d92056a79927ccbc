// Package result provides the uniform outcome type returned by the use-case layer.
package result

import "fmt"

// Kind discriminates the Result variants.
type Kind int

const (
	KindLoading Kind = iota
	KindSuccess
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is a tagged union of Success, Error and Loading.
// The zero value is Loading.
type Result[T any] struct {
	kind    Kind
	value   T
	err     error
	message string
}

// Success wraps a value.
func Success[T any](value T) Result[T] {
	return Result[T]{kind: KindSuccess, value: value}
}

// Error wraps a cause. The message defaults to the cause's text.
func Error[T any](cause error) Result[T] {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return ErrorWithMessage[T](cause, msg)
}

// ErrorWithMessage wraps a cause with a display message.
func ErrorWithMessage[T any](cause error, message string) Result[T] {
	return Result[T]{kind: KindError, err: cause, message: message}
}

// Loading returns the in-progress variant.
func Loading[T any]() Result[T] {
	return Result[T]{kind: KindLoading}
}

// From converts a (value, error) pair.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Error[T](err)
	}
	return Success(value)
}

// Run calls fn and captures its outcome, including panics.
func Run[T any](fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Error[T](fmt.Errorf("panic: %v", r))
		}
	}()
	return From(fn())
}

func (r Result[T]) Kind() Kind      { return r.kind }
func (r Result[T]) IsSuccess() bool { return r.kind == KindSuccess }
func (r Result[T]) IsError() bool   { return r.kind == KindError }
func (r Result[T]) IsLoading() bool { return r.kind == KindLoading }

// Value returns the wrapped value and whether the result is a Success.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.kind == KindSuccess
}

// Err returns the cause of an Error result, nil otherwise.
func (r Result[T]) Err() error {
	if r.kind != KindError {
		return nil
	}
	return r.err
}

// Message returns the display message of an Error result.
func (r Result[T]) Message() string {
	return r.message
}

// Unwrap converts back to the (value, error) form.
func (r Result[T]) Unwrap() (T, error) {
	switch r.kind {
	case KindSuccess:
		return r.value, nil
	case KindError:
		return r.value, r.err
	default:
		var zero T
		return zero, fmt.Errorf("result still loading")
	}
}

// Match calls exactly one handler depending on the variant. All three handlers are required.
func (r Result[T]) Match(onSuccess func(T), onError func(err error, message string), onLoading func()) {
	switch r.kind {
	case KindSuccess:
		onSuccess(r.value)
	case KindError:
		onError(r.err, r.message)
	case KindLoading:
		onLoading()
	default:
		panic(fmt.Sprintf("result: unknown kind %d", r.kind))
	}
}

// Map transforms the value of a Success and passes other variants through.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	switch r.kind {
	case KindSuccess:
		return Success(fn(r.value))
	case KindError:
		return ErrorWithMessage[U](r.err, r.message)
	default:
		return Loading[U]()
	}
}
