package repository

import "errors"

// Sentinel kinds for rating store errors.
var (
	ErrNotFound   = errors.New("rating not found")
	ErrInvalidKey = errors.New("invalid rating key")
	ErrShape      = errors.New("rating shape does not match store params")
)
