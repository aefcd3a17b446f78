// Package ltc681x provides a driver for the LTC681X family of
// multi-cell battery stack monitors on a daisy-chained SPI bus.
//
// Design notes (datasheet references):
// • Commands are 2 opcode bytes (big-endian) + 2 PEC15 bytes.
// • Register group reads return 8 bytes per chained device: 6 payload
//   bytes (three little-endian 16-bit words) + 2 PEC15 bytes.
// • Devices in a chain are addressed by response order, not by ID;
//   the chain length is fixed wiring, supplied in Config.
// • After a conversion command the SDO line stays low while the ADC is
//   busy and is released high on completion, which can be sampled with
//   chip select still asserted (SDO polling).
//
// The driver owns its bus and chip-select pin for its lifetime and is
// not safe for concurrent use without external locking. Every call
// that can fail leaves chip select deasserted, with the single
// documented exception of an in-progress SDO polling sequence.
package ltc681x

import (
	"tinygo.org/x/drivers"
)

// OutputPin abstracts the chip-select line. Asserting means driving
// low, releasing means driving high. Either operation may fail with a
// platform cause.
type OutputPin interface {
	High() error
	Low() error
}

// Config holds construction parameters.
type Config struct {
	// ChainLength is the number of daisy-chained devices. Fixed wiring;
	// must be at least 1 and never changes for the life of a Device.
	ChainLength int
}

// Device is a client for a chain of LTC681X monitors sharing one SPI
// bus and chip-select pin.
type Device struct {
	bus   drivers.SPI
	cs    OutputPin
	chain int

	// sdoPolling selects the line-hold poll strategy: chip select stays
	// asserted after a conversion command until PollConversionDone
	// observes completion.
	sdoPolling bool

	// Fixed buffers to avoid per-call heap allocations.
	tx [8]byte
	rx [8]byte
}

// New constructs a Device without SDO polling: chip select is released
// immediately after each conversion command. The bus must already be
// configured.
func New(bus drivers.SPI, cs OutputPin, cfg Config) (*Device, error) {
	if cfg.ChainLength < 1 {
		return nil, ErrChainLength
	}
	return &Device{
		bus:   bus,
		cs:    cs,
		chain: cfg.ChainLength,
	}, nil
}

// ChainLength returns the configured number of chained devices.
func (d *Device) ChainLength() int { return d.chain }

// EnableSDOPolling switches the device to the line-hold poll strategy
// and returns the replacement value. The switch is irreversible and
// consumes the receiver: the old value fails all operations with
// ErrReleased afterwards. Exactly one strategy is active at a time.
func (d *Device) EnableSDOPolling() *Device {
	next := &Device{
		bus:        d.bus,
		cs:         d.cs,
		chain:      d.chain,
		sdoPolling: true,
	}
	d.bus = nil
	d.cs = nil
	return next
}

// StartConversion starts an ADC conversion of cell voltages across the
// chain. sel limits the conversion to a cell subset and
// dischargePermitted allows discharge switches to stay closed during
// the conversion. Without SDO polling, chip select is released before
// returning; with SDO polling it stays asserted for
// PollConversionDone. On any failure chip select ends deasserted.
func (d *Device) StartConversion(mode ADCMode, sel CellSelection, dischargePermitted bool) error {
	if d.bus == nil {
		return ErrReleased
	}
	if err := d.cs.Low(); err != nil {
		return &PinError{err}
	}
	opcode := opStartCellConversion | uint16(mode)<<adcModeShift | uint16(sel)
	if dischargePermitted {
		opcode |= dischargePermitBit
	}
	if err := d.sendCommand(opcode); err != nil {
		_ = d.cs.High()
		return err
	}
	if d.sdoPolling {
		return nil // line-hold: chip select stays asserted
	}
	if err := d.cs.High(); err != nil {
		return &PinError{err}
	}
	return nil
}

// PollConversionDone samples the chain for conversion completion. Only
// valid on a device switched with EnableSDOPolling, after
// StartConversion. It transmits a single 0xFF byte; an all-ones
// response means the chain is idle, in which case chip select is
// released and true is returned. Any other byte returns false with
// chip select still asserted, so the caller may poll again without
// resending the command. Timeout policy belongs to the caller.
func (d *Device) PollConversionDone() (bool, error) {
	if d.bus == nil {
		return false, ErrReleased
	}
	if !d.sdoPolling {
		return false, ErrNotPolling
	}
	b, err := d.bus.Transfer(0xFF)
	if err != nil {
		_ = d.cs.High()
		return false, &TransferError{err}
	}
	if b != 0xFF {
		return false, nil
	}
	if err := d.cs.High(); err != nil {
		return false, &PinError{err}
	}
	return true, nil
}

// ReadRegisterGroup reads one 6-byte register group from every device
// in the chain and decodes each into three little-endian 16-bit words.
// The result preserves chain order: index 0 is the device closest to
// the controller. A register group is only meaningful as a complete
// set, so the first PEC mismatch aborts the whole read with
// ErrChecksumMismatch and no partial data. Chip select ends deasserted
// on every path.
func (d *Device) ReadRegisterGroup(group RegisterGroup) ([][3]uint16, error) {
	if d.bus == nil {
		return nil, ErrReleased
	}
	if err := d.cs.Low(); err != nil {
		return nil, &PinError{err}
	}
	words, err := d.readGroups(uint16(group))
	if hErr := d.cs.High(); hErr != nil && err == nil {
		err = &PinError{hErr}
	}
	if err != nil {
		return nil, err
	}
	return words, nil
}

// WriteRegisterGroup writes one 6-byte payload per chained device to a
// writable register group. payloads is in chain order; frames are
// transmitted farthest device first, since the chain shifts each
// frame one device further. The driver appends the PEC per frame but
// does not interpret payload contents. Chip select ends deasserted on
// every path.
func (d *Device) WriteRegisterGroup(group WriteGroup, payloads [][6]byte) error {
	if d.bus == nil {
		return ErrReleased
	}
	if len(payloads) != d.chain {
		return ErrPayloadCount
	}
	if err := d.cs.Low(); err != nil {
		return &PinError{err}
	}
	err := d.writeGroups(uint16(group), payloads)
	if hErr := d.cs.High(); hErr != nil && err == nil {
		err = &PinError{hErr}
	}
	return err
}

// WriteConfiguration writes configuration register group A for every
// chained device, one Configuration per device in chain order.
func (d *Device) WriteConfiguration(cfgs []Configuration) error {
	payloads := make([][6]byte, len(cfgs))
	for i := range cfgs {
		payloads[i] = cfgs[i].RegisterA()
	}
	return d.WriteRegisterGroup(WriteConfigGroupA, payloads)
}

// WritePWM writes the PWM register group for every chained device, one
// Pwm per device in chain order.
func (d *Device) WritePWM(pwms []Pwm) error {
	payloads := make([][6]byte, len(pwms))
	for i := range pwms {
		payloads[i] = pwms[i].RegisterA()
	}
	return d.WriteRegisterGroup(WritePWMGroup, payloads)
}

// sendCommand frames opcode with its PEC and transmits it.
func (d *Device) sendCommand(opcode uint16) error {
	frame := Frame(opcode)
	if err := d.bus.Tx(frame[:], nil); err != nil {
		return &TransferError{err}
	}
	return nil
}

func (d *Device) readGroups(opcode uint16) ([][3]uint16, error) {
	if err := d.sendCommand(opcode); err != nil {
		return nil, err
	}
	words := make([][3]uint16, d.chain)
	for i := 0; i < d.chain; i++ {
		frame, err := d.readFrame()
		if err != nil {
			return nil, err
		}
		words[i] = frame
	}
	return words, nil
}

// readFrame clocks one 8-byte device response and verifies its PEC.
func (d *Device) readFrame() ([3]uint16, error) {
	var words [3]uint16
	for i := range d.tx {
		d.tx[i] = 0xFF
	}
	if err := d.bus.Tx(d.tx[:], d.rx[:]); err != nil {
		return words, &TransferError{err}
	}
	pec := Pec15(d.rx[:6])
	if pec[0] != d.rx[6] || pec[1] != d.rx[7] {
		return words, ErrChecksumMismatch
	}
	words[0] = uint16(d.rx[0]) | uint16(d.rx[1])<<8
	words[1] = uint16(d.rx[2]) | uint16(d.rx[3])<<8
	words[2] = uint16(d.rx[4]) | uint16(d.rx[5])<<8
	return words, nil
}

func (d *Device) writeGroups(opcode uint16, payloads [][6]byte) error {
	if err := d.sendCommand(opcode); err != nil {
		return err
	}
	for i := len(payloads) - 1; i >= 0; i-- {
		copy(d.tx[:6], payloads[i][:])
		pec := Pec15(d.tx[:6])
		d.tx[6] = pec[0]
		d.tx[7] = pec[1]
		if err := d.bus.Tx(d.tx[:], nil); err != nil {
			return &TransferError{err}
		}
	}
	return nil
}
