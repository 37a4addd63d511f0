package scheduler

import "errors"

var (
	// ErrSweepInProgress is returned by RunOnce while another sweep is running
	ErrSweepInProgress = errors.New("cleanup sweep already in progress")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
