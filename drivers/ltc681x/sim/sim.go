// Package sim emulates a daisy chain of LTC681X monitors behind the
// driver's bus and chip-select interfaces, for demos and integration
// tests on hosts without hardware.
package sim

import (
	"errors"
	"time"

	"cellstack-go/drivers/ltc681x"
)

// DeviceState holds the emulated registers of one chained device.
type DeviceState struct {
	// CellMicrovolts are the per-cell voltages reported by conversion
	// reads, in microvolts (100µV resolution on the wire).
	CellMicrovolts [6]uint32

	Config [6]byte
	PWM    [6]byte
	Aux    [3]uint16
	Status [3]uint16
}

// Chain is an emulated device chain. It implements drivers.SPI (Tx,
// Transfer) and exposes a chip-select pin via CS(). Not safe for
// concurrent use, matching the single-owner bus contract.
type Chain struct {
	devices []DeviceState

	// ConversionTime is how long a started conversion keeps the SDO
	// line low. Zero means conversions complete instantly.
	ConversionTime time.Duration

	// FailNextTransfer, when set, makes the next bus operation fail
	// with this error and clears itself.
	FailNextTransfer error

	csLow     bool
	busyUntil time.Time
	pending   [][]byte // queued device response frames
	expecting int      // data frames still expected for a write command
	writeOp   uint16
}

var errNoCommand = errors.New("sim: response clocked with no pending command")

// NewChain creates a chain of n emulated devices with all registers
// zeroed.
func NewChain(n int) *Chain {
	return &Chain{devices: make([]DeviceState, n)}
}

// Device returns the mutable state of device i (chain order, 0 is
// closest to the controller).
func (c *Chain) Device(i int) *DeviceState { return &c.devices[i] }

// csPin adapts the chain to the driver's chip-select interface.
type csPin struct{ c *Chain }

func (p csPin) Low() error  { p.c.csLow = true; return nil }
func (p csPin) High() error { p.c.csLow = false; return nil }

// CS returns the emulated chip-select pin.
func (c *Chain) CS() ltc681x.OutputPin { return csPin{c} }

// Tx emulates one full-duplex transfer while chip select is asserted.
func (c *Chain) Tx(w, r []byte) error {
	if c.FailNextTransfer != nil {
		err := c.FailNextTransfer
		c.FailNextTransfer = nil
		return err
	}
	if len(w) == 4 && c.expecting == 0 {
		if c.handleCommand(w) {
			return nil
		}
	}
	if c.expecting > 0 && len(w) == 8 {
		c.handleWriteFrame(w)
		return nil
	}
	if r != nil {
		return c.serveResponse(r)
	}
	return nil
}

// Transfer emulates SDO polling: low while a conversion is running,
// all-ones once the chain is idle.
func (c *Chain) Transfer(b byte) (byte, error) {
	if c.FailNextTransfer != nil {
		err := c.FailNextTransfer
		c.FailNextTransfer = nil
		return 0, err
	}
	if time.Now().Before(c.busyUntil) {
		return 0x00, nil
	}
	return 0xFF, nil
}

// handleCommand decodes a framed command. Returns false if the frame
// checksum is not a valid command, in which case the bytes are treated
// as payload clocking.
func (c *Chain) handleCommand(w []byte) bool {
	pec := ltc681x.Pec15(w[:2])
	if pec[0] != w[2] || pec[1] != w[3] {
		return false
	}
	opcode := uint16(w[0])<<8 | uint16(w[1])

	// Conversion commands carry mode/selection bits; mask them off.
	if opcode&0x0260 == 0x0260 {
		c.busyUntil = time.Now().Add(c.ConversionTime)
		return true
	}

	switch ltc681x.WriteGroup(opcode) {
	case ltc681x.WriteConfigGroupA, ltc681x.WritePWMGroup:
		c.writeOp = opcode
		c.expecting = len(c.devices)
		return true
	}

	c.pending = c.pending[:0]
	for i := range c.devices {
		if frame, ok := c.readGroup(&c.devices[i], ltc681x.RegisterGroup(opcode)); ok {
			c.pending = append(c.pending, frame)
		}
	}
	return true
}

// handleWriteFrame applies one 6-byte payload. Frames shift through
// the chain, so the first frame clocked lands on the last device.
func (c *Chain) handleWriteFrame(w []byte) {
	c.expecting--
	dev := &c.devices[c.expecting]
	var payload [6]byte
	copy(payload[:], w[:6])
	switch ltc681x.WriteGroup(c.writeOp) {
	case ltc681x.WriteConfigGroupA:
		dev.Config = payload
	case ltc681x.WritePWMGroup:
		dev.PWM = payload
	}
}

func (c *Chain) serveResponse(r []byte) error {
	if len(c.pending) == 0 {
		return errNoCommand
	}
	copy(r, c.pending[0])
	c.pending = c.pending[1:]
	return nil
}

// readGroup builds the checksum-valid 8-byte response of one device
// for the given register group.
func (c *Chain) readGroup(dev *DeviceState, group ltc681x.RegisterGroup) ([]byte, bool) {
	var words [3]uint16
	switch group {
	case ltc681x.CellVoltageGroupA:
		words = cellWords(dev, 0)
	case ltc681x.CellVoltageGroupB:
		words = cellWords(dev, 3)
	case ltc681x.AuxVoltageGroupA:
		words = dev.Aux
	case ltc681x.StatusGroupA:
		words = dev.Status
	case ltc681x.ConfigGroupA:
		words = packWords(dev.Config)
	case ltc681x.PWMGroup:
		words = packWords(dev.PWM)
	default:
		return nil, false
	}
	frame := make([]byte, 8)
	for i, w := range words {
		frame[2*i] = byte(w)
		frame[2*i+1] = byte(w >> 8)
	}
	pec := ltc681x.Pec15(frame[:6])
	frame[6] = pec[0]
	frame[7] = pec[1]
	return frame, true
}

// cellWords converts three cell voltages to raw 100µV codes.
func cellWords(dev *DeviceState, first int) [3]uint16 {
	var words [3]uint16
	for i := 0; i < 3; i++ {
		words[i] = uint16(dev.CellMicrovolts[first+i] / 100)
	}
	return words
}

func packWords(reg [6]byte) [3]uint16 {
	return [3]uint16{
		uint16(reg[0]) | uint16(reg[1])<<8,
		uint16(reg[2]) | uint16(reg[3])<<8,
		uint16(reg[4]) | uint16(reg[5])<<8,
	}
}
