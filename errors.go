package cameracapture

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable means the device could not be opened or brought
	// up. Fatal to Start.
	ErrDeviceUnavailable = errors.New("camera-capture: device unavailable")
	// ErrFrameSizeMismatch marks a raw frame whose length does not match the
	// negotiated size. The frame is dropped; the session continues.
	ErrFrameSizeMismatch = errors.New("camera-capture: frame size mismatch")
	// ErrConversionResourceExhausted marks a frame that could not be
	// converted or rotated. The frame is dropped; the session continues.
	ErrConversionResourceExhausted = errors.New("camera-capture: conversion resources exhausted")
	// ErrShutdownTimeout means the worker did not exit within the shutdown
	// timeout and was abandoned.
	ErrShutdownTimeout = errors.New("camera-capture: worker shutdown timed out")
	// ErrAlreadyStarted is returned by Start on a controller that is not idle.
	ErrAlreadyStarted = errors.New("camera-capture: controller already started")
	// ErrNotRunning is returned when a command reaches a worker that is gone.
	ErrNotRunning = errors.New("camera-capture: controller not running")
)

// ErrorCategory classifies device runtime errors for telemetry.
type ErrorCategory int

const (
	// ErrCategoryUnknown is anything not matched by another category
	ErrCategoryUnknown ErrorCategory = iota
	// ErrCategoryDevice covers lost, busy or unplugged devices
	ErrCategoryDevice
	// ErrCategoryFormat covers negotiation and pixel format failures
	ErrCategoryFormat
	// ErrCategoryPermission covers access denied to the device node
	ErrCategoryPermission
	// ErrCategoryStream covers data flow errors while previewing
	ErrCategoryStream
)

// String returns a human-readable category name.
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryPermission:
		return "permission"
	case ErrCategoryStream:
		return "stream"
	default:
		return "unknown"
	}
}

// DeviceError is a runtime error reported by a device while previewing.
type DeviceError struct {
	Category ErrorCategory
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera-capture: device error [%s]: %v", e.Category, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// CategoryOf returns the category of err when it wraps a DeviceError.
func CategoryOf(err error) ErrorCategory {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Category
	}
	return ErrCategoryUnknown
}
