package ltc681x

import "errors"

// Configuration register group A encoder for the LTC6810 variant
// (6 cells, 4 GPIOs). Selector enums cover the whole chip family;
// selectors a reduced variant does not carry are rejected with a
// configuration error rather than silently remapped.

// GPIO identifies a general purpose I/O pin. The family carries up to
// nine; the LTC6810 variant exposes GPIO1-GPIO4.
type GPIO uint8

const (
	GPIO1 GPIO = iota + 1
	GPIO2
	GPIO3
	GPIO4
	GPIO5
	GPIO6
	GPIO7
	GPIO8
	GPIO9
)

// Cell identifies a battery cell input. The family monitors up to 18
// cells; the LTC6810 variant monitors Cell1-Cell6.
type Cell uint8

const (
	Cell1 Cell = iota + 1
	Cell2
	Cell3
	Cell4
	Cell5
	Cell6
	Cell7
	Cell8
	Cell9
	Cell10
	Cell11
	Cell12
	Cell13
	Cell14
	Cell15
	Cell16
	Cell17
	Cell18
)

// DischargeTimeout encodes the DCTO field: how long discharge switches
// stay closed without a new configuration write.
type DischargeTimeout uint8

const (
	DischargeTimeoutDisabled DischargeTimeout = iota
	DischargeTimeout30Sec
	DischargeTimeout1Min
	DischargeTimeout2Min
	DischargeTimeout3Min
	DischargeTimeout4Min
	DischargeTimeout5Min
	DischargeTimeout10Min
	DischargeTimeout15Min
	DischargeTimeout20Min
	DischargeTimeout30Min
	DischargeTimeout40Min
	DischargeTimeout60Min
	DischargeTimeout75Min
	DischargeTimeout90Min
	DischargeTimeout120Min
)

// Configuration errors.
var (
	ErrUnsupportedGPIO    = errors.New("ltc681x: GPIO not present on this variant")
	ErrUnsupportedCell    = errors.New("ltc681x: cell not present on this variant")
	ErrVoltageOutOfRange  = errors.New("ltc681x: comparison voltage out of range")
)

// Comparison voltage limits in microvolts. Zero is the dedicated
// "comparison disabled" sentinel and bypasses the range check.
const (
	underVoltMinUV = 3_200
	underVoltMaxUV = 6_553_600
	overVoltMinUV  = 1_600
	overVoltMaxUV  = 6_552_000
)

// Configuration holds the abstracted contents of configuration
// register group A. The zero value is not valid; use
// DefaultConfiguration.
type Configuration struct {
	registerA [6]byte
}

// DefaultConfiguration returns the power-on register contents: GPIO
// pull-downs off, references off, comparisons and discharge disabled.
func DefaultConfiguration() Configuration {
	return Configuration{registerA: [6]byte{0b1111_1000}}
}

// RegisterA returns the encoded 6-byte payload for WriteConfigGroupA.
func (c Configuration) RegisterA() [6]byte { return c.registerA }

// gpioPullDownMask returns the CFGRA0 bit for pin, or 0 if the variant
// does not carry it. The bits are active low: cleared enables the
// pull-down.
func gpioPullDownMask(pin GPIO) byte {
	switch pin {
	case GPIO1:
		return 0b0000_1000
	case GPIO2:
		return 0b0001_0000
	case GPIO3:
		return 0b0010_0000
	default:
		return 0
	}
}

// EnableGPIOPullDown enables the pull-down of the given GPIO pin.
func (c *Configuration) EnableGPIOPullDown(pin GPIO) error {
	mask := gpioPullDownMask(pin)
	if mask == 0 {
		return ErrUnsupportedGPIO
	}
	c.registerA[0] &^= mask
	return nil
}

// DisableGPIOPullDown disables the pull-down of the given GPIO pin.
func (c *Configuration) DisableGPIOPullDown(pin GPIO) error {
	mask := gpioPullDownMask(pin)
	if mask == 0 {
		return ErrUnsupportedGPIO
	}
	c.registerA[0] |= mask
	return nil
}

// EnableReferencePower keeps the references powered between
// conversions, until watchdog timeout.
func (c *Configuration) EnableReferencePower() { c.registerA[0] |= 0b0000_0100 }

// DisableReferencePower shuts references down after conversions
// (power-on default).
func (c *Configuration) DisableReferencePower() { c.registerA[0] &^= 0b0000_0100 }

// EnableDischargeTimer enables the discharge timer for discharge
// switches.
func (c *Configuration) EnableDischargeTimer() { c.registerA[0] |= 0b0000_0010 }

// DisableDischargeTimer disables the discharge timer.
func (c *Configuration) DisableDischargeTimer() { c.registerA[0] &^= 0b0000_0010 }

// SetAlternativeADCModes selects the alternative mode set (14kHz,
// 3kHz, 1kHz or 2kHz).
func (c *Configuration) SetAlternativeADCModes() { c.registerA[0] |= 0b0000_0001 }

// SetDefaultADCModes selects the default mode set (27kHz, 7kHz, 422Hz
// or 26Hz).
func (c *Configuration) SetDefaultADCModes() { c.registerA[0] &^= 0b0000_0001 }

// SetUnderVoltageComp sets the under-voltage comparison threshold in
// microvolts. Zero disables the comparison (all-zero bits); otherwise
// the value must be within 3.2mV to 6.5536V, in 1.6mV steps.
func (c *Configuration) SetUnderVoltageComp(microvolts uint32) error {
	if microvolts == 0 {
		c.registerA[1] = 0
		c.registerA[2] &= 0b1111_0000
		return nil
	}
	if microvolts < underVoltMinUV || microvolts > underVoltMaxUV {
		return ErrVoltageOutOfRange
	}
	code := uint16(microvolts/1600 - 1)
	c.registerA[1] = byte(code)
	c.registerA[2] &= 0b1111_0000
	c.registerA[2] |= byte(code >> 8)
	return nil
}

// SetOverVoltageComp sets the over-voltage comparison threshold in
// microvolts. Zero disables the comparison (all-zero bits); otherwise
// the value must be within 1.6mV to 6.552V, in 1.6mV steps.
func (c *Configuration) SetOverVoltageComp(microvolts uint32) error {
	if microvolts == 0 {
		c.registerA[2] &= 0b0000_1111
		c.registerA[3] = 0
		return nil
	}
	if microvolts < overVoltMinUV || microvolts > overVoltMaxUV {
		return ErrVoltageOutOfRange
	}
	code := uint16(microvolts / 1600)
	c.registerA[3] = byte(code >> 4)
	c.registerA[2] &= 0b0000_1111
	c.registerA[2] |= byte(code << 4)
	return nil
}

// DischargeCell closes the shorting switch for the given cell.
func (c *Configuration) DischargeCell(cell Cell) error {
	if cell < Cell1 || cell > Cell6 {
		return ErrUnsupportedCell
	}
	c.registerA[4] |= 1 << (cell - Cell1)
	return nil
}

// SetDischargeTimeout sets the discharge timeout code.
func (c *Configuration) SetDischargeTimeout(timeout DischargeTimeout) {
	c.registerA[5] &= 0b0000_1111
	c.registerA[5] |= byte(timeout&0x0F) << 4
}

// ForceDigitalRedundancyFail forces the digital redundancy comparison
// for ADC conversions to fail.
func (c *Configuration) ForceDigitalRedundancyFail() { c.registerA[5] |= 0b0000_0100 }

// EnableDischargeMonitor enables the discharge timer monitor when the
// DTEN pin is asserted. Otherwise (default) the normal discharge timer
// runs when DTEN is asserted.
func (c *Configuration) EnableDischargeMonitor() { c.registerA[5] |= 0b0000_0001 }
