package playstore

import "errors"

// Sentinel kinds for play store errors.
var (
	ErrInvalidRow = errors.New("invalid play row")
	ErrOpen       = errors.New("cannot open play source")
)
