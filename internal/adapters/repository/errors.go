package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for artifact store errors.
var (
	ErrNotFound       = errors.New("artifact not found")
	ErrInvalidName    = errors.New("invalid artifact name")
	ErrCorrupt        = errors.New("corrupt artifact")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// NotFoundError indicates an artifact was not found.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s", e.Name)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
