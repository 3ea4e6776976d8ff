package shared

import "errors"

var (
	// ErrDataUnavailable is returned when the data source has no data for a request.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrNotReady is returned by detectors when there is no new data to act on.
	ErrNotReady = errors.New("not ready")
	// ErrConfiguration is returned for invalid configuration, it is fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound is returned when a persisted record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistence is returned when a storage write fails.
	ErrPersistence = errors.New("persistence error")
)
