package service

import "fmt"

// NotFoundError reports a missing model artifact at load time.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model file %s not found", e.Path)
}

// InvalidArgumentError reports a missing or empty required request field.
type InvalidArgumentError struct {
	Field string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// DecodeError reports an image payload that could not be decoded.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// UninitializedModelError reports inference requested before Load
// completed.
type UninitializedModelError struct{}

func (e *UninitializedModelError) Error() string {
	return "models are not loaded"
}
