package storage

import "errors"

// ErrUnsupportedType is returned by the factory for an unknown backend type.
var ErrUnsupportedType = errors.New("unsupported storage type")

// ErrClosed is returned when writing to a storage that has been closed.
var ErrClosed = errors.New("storage is closed")
