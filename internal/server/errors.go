package server

import "errors"

// Server-specific errors
var (
	ErrServerNotRunning     = errors.New("status server is not running")
	ErrServerAlreadyRunning = errors.New("status server is already running")
)
