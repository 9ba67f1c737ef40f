package capture

import (
	"errors"
	"fmt"
)

var (
	ErrCaptureActive        = errors.New("capture already active")
	ErrNotCapturing         = errors.New("capture not active")
	ErrConfirmationDeclined = errors.New("overwrite declined")
	ErrInvalidLabel         = errors.New("invalid capture label")
	ErrNoOutputs            = errors.New("no capture outputs enabled")

	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// ConnectionError 设备打开或读取失败
type ConnectionError struct {
	Port string
	Op   string // open / read
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
