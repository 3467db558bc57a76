package domain

import "errors"

var (
	ErrCaptureInit      = errors.New("capture backend unavailable")
	ErrCaptureRunning   = errors.New("capture already running")
	ErrCaptureStopped   = errors.New("capture not running")
	ErrNotConnected     = errors.New("control channel not connected")
	ErrConnectionLost   = errors.New("control channel connection lost")
	ErrAuthFailed       = errors.New("control channel authentication failed")
	ErrApplyFailed      = errors.New("apply stream settings failed")
	ErrApplyInFlight    = errors.New("apply already in flight")
	ErrNoStreamSettings = errors.New("no server and stream key discovered yet")
)
