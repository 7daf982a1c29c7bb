package scan

import "errors"

var (
	ErrScanInProgress = errors.New("scan already running")
	ErrScanCancelled  = errors.New("scan cancelled")
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidTarget  = errors.New("invalid attack target")

	// Remote job failures
	ErrJobFailed    = errors.New("remote scan job failed")
	ErrJobCancelled = errors.New("remote scan job cancelled")
)
