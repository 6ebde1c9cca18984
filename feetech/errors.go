package feetech

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrConnectionLost indicates the bus has no open transport, either
	// because it was never connected or because it was closed.
	ErrConnectionLost = errors.New("connection lost")

	// ErrTimeout indicates no complete frame arrived within the deadline.
	ErrTimeout = errors.New("communication timeout")

	// ErrInvalidResponse indicates a malformed frame: bad header, a length
	// field disagreeing with the available bytes, or a reply addressed
	// from the wrong servo.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrInvalidParameter indicates caller misuse: wrong-width data, an
	// empty batch, an unknown register for the model, or an out-of-range id.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ChecksumError reports a frame whose checksum did not validate.
type ChecksumError struct {
	ID       byte // id field of the rejected frame
	Expected byte
	Actual   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("servo %d: checksum mismatch: expected 0x%02X, got 0x%02X", e.ID, e.Expected, e.Actual)
}

// CommError represents a communication-level error.
type CommError struct {
	Op  string // Operation that failed (e.g., "read", "write", "ping")
	Err error  // Underlying error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("communication error during %s: %v", e.Op, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// ServoError represents an error from a specific servo.
type ServoError struct {
	ID     int         // Servo ID
	Op     string      // Operation that failed
	Status StatusError // Status flags reported by the servo (if applicable)
	Err    error       // Underlying error (if applicable)
}

func (e *ServoError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("servo %d %s failed: %s", e.ID, e.Op, e.Status.Error())
	}
	if e.Err != nil {
		return fmt.Sprintf("servo %d %s failed: %v", e.ID, e.Op, e.Err)
	}
	return fmt.Sprintf("servo %d %s failed", e.ID, e.Op)
}

func (e *ServoError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// GetServoError extracts a ServoError from an error chain, if present.
func GetServoError(err error) (*ServoError, bool) {
	var servoErr *ServoError
	if errors.As(err, &servoErr) {
		return servoErr, true
	}
	return nil, false
}

// GetChecksumError extracts a ChecksumError from an error chain, if present.
func GetChecksumError(err error) (*ChecksumError, bool) {
	var ckErr *ChecksumError
	if errors.As(err, &ckErr) {
		return ckErr, true
	}
	return nil, false
}
