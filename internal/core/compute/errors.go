package compute

import "errors"

var (
	ErrBackendUnavailable = errors.New("required backend unavailable")
	ErrCoordinatorClosed  = errors.New("coordinator is closed")
	ErrNilWorkload        = errors.New("task has no workload")
)
