// Copyright (c) 2023 BVK Chaitanya

package api

import (
	"fmt"
	"os"
)

// ValidationError reports a request that violates a documented constraint.
// It matches os.ErrInvalid with errors.Is.
type ValidationError struct {
	Message string
}

func Invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == os.ErrInvalid
}

// NotFoundError reports a referenced order or resource that does not exist.
// It matches os.ErrNotExist with errors.Is.
type NotFoundError struct {
	Message string
}

func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func (e *NotFoundError) Is(target error) bool {
	return target == os.ErrNotExist
}

type ErrorResponse struct {
	Error string `json:"error"`
}
