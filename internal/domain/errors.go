package domain

import "errors"

var (
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrResourceExhausted      = errors.New("resource exhausted")
	ErrTileNotFound           = errors.New("tile not found")
	ErrInvalidGeometry        = errors.New("invalid geometry")
	ErrClosed                 = errors.New("closed")
)
