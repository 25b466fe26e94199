package checkpoint

import "errors"

// Sentinel kinds for checkpoint errors.
var (
	ErrOutOfOrder = errors.New("checkpoint layer out of order")
	ErrCorrupt    = errors.New("checkpoint data corrupt")
)
