package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrAlreadyRunning = errors.New("service already running")
	ErrNotReady       = errors.New("ratings not loaded yet")
)
