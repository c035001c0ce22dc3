package models

import "errors"

var (
	// ErrData signals a corpus or embedding source that is missing, empty, or unreadable.
	ErrData = errors.New("data error")
	// ErrAlignment signals that the record store and vector table do not correspond.
	ErrAlignment = errors.New("store/embeddings misaligned or corrupt")
	// ErrValidation signals a malformed request parameter.
	ErrValidation = errors.New("validation error")
	// ErrNotReady signals a query against an engine that is not ready to serve.
	ErrNotReady = errors.New("engine not ready")
	// ErrIndexOutOfRange signals a record lookup past the end of the store.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrDimension signals a query vector whose dimension differs from the vector table.
	ErrDimension = errors.New("vector dimension mismatch")
)
