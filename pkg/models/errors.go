package models

import "errors"

var (
	// ErrNotFound is returned by stores when a lookup matches no row
	ErrNotFound = errors.New("not found")

	// ErrDeviceInactive is returned when a credential belongs to a device that
	// is not allowed to report
	ErrDeviceInactive = errors.New("device is not active")
)
