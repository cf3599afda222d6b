package domain

import "errors"

// ErrEntityNotFound is returned by Source implementations when the requested
// row no longer exists.
var ErrEntityNotFound = errors.New("entity not found")
