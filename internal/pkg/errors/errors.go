package errors

import "errors"

var (
	// ErrNoInputFiles is returned when an ADD run matches no source documents.
	ErrNoInputFiles = errors.New("no input files matched")
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
