package device

import "errors"

// Sentinel errors for device operations.
var (
	// ErrNotFound indicates no device with the requested id or channel
	// name exists.
	ErrNotFound = errors.New("device not found")

	// ErrInactive indicates the device exists but its active flag is off;
	// commands are not dispatched to inactive devices.
	ErrInactive = errors.New("device is inactive")

	// ErrDeviceIDExists indicates the channel name is already taken.
	ErrDeviceIDExists = errors.New("device_id already exists")
)
