// Package scanner owns the capture-device lifecycle for the administration
// workflow: enumerate devices, bind one exclusively, and deliver decoded
// payload strings one scan at a time.
package scanner

import (
	"context"
	"errors"
)

// Device identifies an attached capture device. Devices are ephemeral and
// rediscovered on every session; they are never persisted.
type Device struct {
	ID    string `json:"device_id"`
	Label string `json:"label"`
}

// Capture is an open decode stream for one device.
type Capture interface {
	// Read blocks until the next decoded frame or a device error.
	Read(ctx context.Context) (string, error)
	Close() error
}

// Driver abstracts the underlying capture hardware.
type Driver interface {
	ListDevices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, deviceID string) (Capture, error)
}

// Sentinel conditions surfaced to the user with a retry affordance.
var (
	ErrNoDeviceFound = errors.New("no capture devices found")
	ErrDeviceBusy    = errors.New("device is already bound to another session")
	ErrSessionState  = errors.New("operation not valid in current session state")
)
