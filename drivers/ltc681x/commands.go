package ltc681x

// Command opcodes and framing. Opcodes are 11-bit values transmitted
// big-endian in the first two command bytes, followed by their PEC15.

// RegisterGroup identifies a readable 6-byte register group. The value
// is the read opcode itself.
type RegisterGroup uint16

const (
	// Configuration register groups
	ConfigGroupA RegisterGroup = 0x0002
	ConfigGroupB RegisterGroup = 0x0026

	// Cell voltage register groups (three cells per group)
	CellVoltageGroupA RegisterGroup = 0x0004
	CellVoltageGroupB RegisterGroup = 0x0006
	CellVoltageGroupC RegisterGroup = 0x0008
	CellVoltageGroupD RegisterGroup = 0x000A
	CellVoltageGroupE RegisterGroup = 0x0009
	CellVoltageGroupF RegisterGroup = 0x000B

	// Auxiliary (GPIO/reference) voltage register groups
	AuxVoltageGroupA RegisterGroup = 0x000C
	AuxVoltageGroupB RegisterGroup = 0x000E
	AuxVoltageGroupC RegisterGroup = 0x000D
	AuxVoltageGroupD RegisterGroup = 0x000F

	// Status register groups
	StatusGroupA RegisterGroup = 0x0010
	StatusGroupB RegisterGroup = 0x0012

	// PWM register group
	PWMGroup RegisterGroup = 0x0022
)

// WriteGroup identifies a writable 6-byte register group. The value is
// the write opcode itself.
type WriteGroup uint16

const (
	WriteConfigGroupA WriteGroup = 0x0001
	WriteConfigGroupB WriteGroup = 0x0024
	WritePWMGroup     WriteGroup = 0x0020
)

// Start-cell-voltage-conversion opcode composition.
const (
	opStartCellConversion uint16 = 0x0260
	adcModeShift                 = 7
	dischargePermitBit    uint16 = 0x0010
)

// ADCMode selects conversion speed and noise filtering. The effective
// frequency also depends on the ADCOPT configuration bit.
type ADCMode uint16

const (
	// ADCModeOther: 422Hz, or 1kHz with ADCOPT set.
	ADCModeOther ADCMode = 0x0
	// ADCModeFast: 27kHz, or 14kHz with ADCOPT set.
	ADCModeFast ADCMode = 0x1
	// ADCModeNormal: 7kHz, or 3kHz with ADCOPT set.
	ADCModeNormal ADCMode = 0x2
	// ADCModeFiltered: 26Hz, or 2kHz with ADCOPT set.
	ADCModeFiltered ADCMode = 0x3
)

// CellSelection restricts a conversion to a subset of cells.
type CellSelection uint16

const (
	// All cells
	CellSelectionAll CellSelection = 0x0
	// Cells 1, 7, 13
	CellSelectionGroup1 CellSelection = 0x1
	// Cells 2, 8, 14
	CellSelectionGroup2 CellSelection = 0x2
	// Cells 3, 9, 15
	CellSelectionGroup3 CellSelection = 0x3
	// Cells 4, 10, 16
	CellSelectionGroup4 CellSelection = 0x4
	// Cells 5, 11, 17
	CellSelectionGroup5 CellSelection = 0x5
	// Cells 6, 12, 18
	CellSelectionGroup6 CellSelection = 0x6
)

// Frame builds the 4-byte command word for opcode: big-endian opcode
// followed by its PEC15. Commands are framed fresh per call.
func Frame(opcode uint16) [4]byte {
	frame := [4]byte{byte(opcode >> 8), byte(opcode)}
	pec := Pec15(frame[:2])
	frame[2] = pec[0]
	frame[3] = pec[1]
	return frame
}
