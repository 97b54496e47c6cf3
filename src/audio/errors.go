package audio

import (
	"errors"
	"strings"
)

var (
	// ErrPermissionDenied means the OS refused access to the input device.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceNotFound means no usable input device (or recorder) exists.
	ErrDeviceNotFound = errors.New("microphone not found")

	// ErrCaptureStopped is returned by Read after Stop.
	ErrCaptureStopped = errors.New("capture stopped")
)

var permissionMarkers = []string{
	"permission denied",
	"operation not permitted",
	"access denied",
	"not authorized",
}

var deviceMarkers = []string{
	"no such file or directory",
	"no such device",
	"no such audio device",
	"cannot open audio device",
	"device or resource busy",
	"connection refused",
	"input/output error",
}

// classifyCaptureFailure maps recorder diagnostics onto ErrPermissionDenied
// or ErrDeviceNotFound. It returns nil when the output matches neither.
func classifyCaptureFailure(stderr string) error {
	lower := strings.ToLower(stderr)
	for _, m := range permissionMarkers {
		if strings.Contains(lower, m) {
			return ErrPermissionDenied
		}
	}
	for _, m := range deviceMarkers {
		if strings.Contains(lower, m) {
			return ErrDeviceNotFound
		}
	}
	return nil
}
