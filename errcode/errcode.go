package errcode

import (
	"errors"

	"cellstack-go/drivers/ltc681x"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Measurement path
	BusFault          Code = "bus_fault"
	CSFault           Code = "cs_fault"
	ChecksumMismatch  Code = "checksum_mismatch"
	ConversionTimeout Code = "conversion_timeout"

	// Configuration
	InvalidConfig       Code = "invalid_config"
	UnsupportedSelector Code = "unsupported_selector"
	VoltageOutOfRange   Code = "voltage_out_of_range"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps monitor driver errors to a Code.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	switch {
	case errors.Is(err, ltc681x.ErrChecksumMismatch):
		return ChecksumMismatch
	case errors.Is(err, ltc681x.ErrChainLength),
		errors.Is(err, ltc681x.ErrPayloadCount),
		errors.Is(err, ltc681x.ErrNotPolling),
		errors.Is(err, ltc681x.ErrReleased):
		return InvalidConfig
	case errors.Is(err, ltc681x.ErrUnsupportedGPIO),
		errors.Is(err, ltc681x.ErrUnsupportedCell):
		return UnsupportedSelector
	case errors.Is(err, ltc681x.ErrVoltageOutOfRange):
		return VoltageOutOfRange
	}
	var te *ltc681x.TransferError
	if errors.As(err, &te) {
		return BusFault
	}
	var pe *ltc681x.PinError
	if errors.As(err, &pe) {
		return CSFault
	}
	return Error
}
