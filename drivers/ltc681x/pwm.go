package ltc681x

// PWM register group encoder for the LTC6810 variant: one 4-bit duty
// cycle per cell, two cells per byte, bytes 0-2 of the group.

// DutyCycle encodes the discharge PWM on-fraction in 1/16 steps.
type DutyCycle uint8

const (
	// DutyCycleOff keeps the discharge switch open.
	DutyCycleOff DutyCycle = 0x0
	// DutyCycleFull keeps the discharge switch closed.
	DutyCycleFull DutyCycle = 0xF
)

// Pwm holds the abstracted contents of the PWM register group. The
// zero value has all duty cycles off.
type Pwm struct {
	registerA [6]byte
}

// SetDutyCycle applies the same duty cycle to every cell.
func (p *Pwm) SetDutyCycle(dc DutyCycle) {
	bits := byte(dc & 0x0F)
	packed := bits<<4 | bits
	p.registerA[0] = packed
	p.registerA[1] = packed
	p.registerA[2] = packed
}

// RegisterA returns the encoded 6-byte payload for WritePWMGroup.
func (p Pwm) RegisterA() [6]byte { return p.registerA }
