package tuner

import "errors"

var (
	// ErrDeviceUnavailable is returned when the device cannot be opened.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrDeviceIO is returned when an open device fails to tune or read.
	ErrDeviceIO = errors.New("device I/O error")
	// ErrInvalidSettings is returned for settings outside physical or
	// logical bounds. The previous settings are kept.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrNotConnected is returned by operations that need an open device.
	ErrNotConnected = errors.New("device not connected")
	// ErrScanInProgress is returned when a scan is requested while another
	// is running.
	ErrScanInProgress = errors.New("scan already in progress")
)
