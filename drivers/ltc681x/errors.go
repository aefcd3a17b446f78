package ltc681x

import "errors"

// Errors returned by the driver. Bus and pin failures keep their
// underlying cause reachable through errors.Unwrap / errors.As; none of
// them is retried internally.
var (
	// ErrChecksumMismatch reports that a device response failed PEC
	// verification. The whole read is discarded; no partial data is
	// ever returned.
	ErrChecksumMismatch = errors.New("ltc681x: response checksum mismatch")

	// ErrNotPolling reports a PollConversionDone call on a device that
	// was not switched to SDO polling.
	ErrNotPolling = errors.New("ltc681x: SDO polling not enabled")

	// ErrReleased reports use of a device value consumed by
	// EnableSDOPolling.
	ErrReleased = errors.New("ltc681x: device value released by EnableSDOPolling")

	// ErrChainLength reports a non-positive chain length.
	ErrChainLength = errors.New("ltc681x: chain length must be at least 1")

	// ErrPayloadCount reports a write whose per-device payload count
	// does not match the chain length.
	ErrPayloadCount = errors.New("ltc681x: payload count does not match chain length")
)

// TransferError wraps a failure reported by the SPI bus.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string { return "ltc681x: bus transfer failed: " + e.Err.Error() }
func (e *TransferError) Unwrap() error { return e.Err }

// PinError wraps a failure reported by the chip-select pin.
type PinError struct {
	Err error
}

func (e *PinError) Error() string { return "ltc681x: chip select failed: " + e.Err.Error() }
func (e *PinError) Unwrap() error { return e.Err }
