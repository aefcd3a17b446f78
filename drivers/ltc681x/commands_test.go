package ltc681x

import "testing"

// Precomputed command words from the device family datasheet.
func TestFrame_KnownCommands(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		want   [4]byte
	}{
		{"read cell voltage group A", uint16(CellVoltageGroupA), [4]byte{0x00, 0x04, 0x07, 0xC2}},
		{"read cell voltage group B", uint16(CellVoltageGroupB), [4]byte{0x00, 0x06, 0x9A, 0x94}},
		{"read cell voltage group C", uint16(CellVoltageGroupC), [4]byte{0x00, 0x08, 0x5E, 0x52}},
		{"read cell voltage group D", uint16(CellVoltageGroupD), [4]byte{0x00, 0x0A, 0xC3, 0x04}},
		{"read cell voltage group E", uint16(CellVoltageGroupE), [4]byte{0x00, 0x09, 0xD5, 0x60}},
		{"read cell voltage group F", uint16(CellVoltageGroupF), [4]byte{0x00, 0x0B, 0x48, 0x36}},
		{"read aux voltage group A", uint16(AuxVoltageGroupA), [4]byte{0x00, 0x0C, 0xEF, 0xCC}},
		{"read aux voltage group B", uint16(AuxVoltageGroupB), [4]byte{0x00, 0x0E, 0x72, 0x9A}},
		{"read aux voltage group C", uint16(AuxVoltageGroupC), [4]byte{0x00, 0x0D, 0x64, 0xFE}},
		{"read aux voltage group D", uint16(AuxVoltageGroupD), [4]byte{0x00, 0x0F, 0xF9, 0xA8}},
		{"read status group A", uint16(StatusGroupA), [4]byte{0x00, 0x10, 0xED, 0x72}},
		{"read status group B", uint16(StatusGroupB), [4]byte{0x00, 0x12, 0x70, 0x24}},
		{"read config group A", uint16(ConfigGroupA), [4]byte{0x00, 0x02, 0x2B, 0x0A}},
		{"read config group B", uint16(ConfigGroupB), [4]byte{0x00, 0x26, 0x2C, 0xC8}},
		{"write config group A", uint16(WriteConfigGroupA), [4]byte{0x00, 0x01, 0x3D, 0x6E}},
		{"write config group B", uint16(WriteConfigGroupB), [4]byte{0x00, 0x24, 0xB1, 0x9E}},
		{"read PWM group", uint16(PWMGroup), [4]byte{0x00, 0x22, 0x9D, 0x56}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Frame(tt.opcode)
			if got != tt.want {
				t.Errorf("Frame(0x%04X) = % X, want % X", tt.opcode, got, tt.want)
			}
		})
	}
}

// The trailing two bytes of every frame must be the PEC of the leading
// two, for any opcode.
func TestFrame_ChecksumConsistency(t *testing.T) {
	for opcode := 0; opcode < 0x800; opcode++ {
		frame := Frame(uint16(opcode))
		pec := Pec15(frame[:2])
		if frame[2] != pec[0] || frame[3] != pec[1] {
			t.Fatalf("Frame(0x%04X): trailing bytes %02X %02X, PEC %02X %02X",
				opcode, frame[2], frame[3], pec[0], pec[1])
		}
		if frame[0] != byte(opcode>>8) || frame[1] != byte(opcode) {
			t.Fatalf("Frame(0x%04X): leading bytes %02X %02X not big-endian opcode",
				opcode, frame[0], frame[1])
		}
	}
}

func TestStartConversionOpcodeComposition(t *testing.T) {
	// Mode, selection and discharge bits occupy disjoint ranges of the
	// base opcode.
	op := opStartCellConversion | uint16(ADCModeNormal)<<adcModeShift | uint16(CellSelectionGroup3) | dischargePermitBit
	if op != 0x0373 {
		t.Errorf("composed opcode = 0x%04X, want 0x0373", op)
	}
	if opStartCellConversion&(uint16(ADCModeFiltered)<<adcModeShift|uint16(CellSelectionGroup6)|dischargePermitBit) != 0 {
		t.Error("start conversion bit ranges overlap the base opcode")
	}
}
