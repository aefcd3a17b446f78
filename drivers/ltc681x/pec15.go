package ltc681x

// PEC15 is the packet error code appended to every command and data
// register group on the wire. 15-bit CRC, generator polynomial
// x^15 + x^14 + x^10 + x^8 + x^7 + x^4 + x^3 + 1 (0x4599), seed 16.
// The final value is shifted left once so bit 0 of the low byte is
// always zero, as the devices expect.

const (
	pecPolynomial = 0x4599
	pecSeed       = 0x0010
)

// Lookup table indexed by (remainder high byte XOR data byte).
// Built once at package init and read-only afterwards.
var pecTable = buildPecTable()

func buildPecTable() [256]uint16 {
	var table [256]uint16
	for i := range table {
		remainder := uint16(i) << 7
		for bit := 0; bit < 8; bit++ {
			if remainder&0x4000 != 0 {
				remainder = (remainder << 1) ^ pecPolynomial
			} else {
				remainder <<= 1
			}
		}
		table[i] = remainder
	}
	return table
}

// Pec15 returns the two PEC bytes [high, low] for data. Pure function;
// the empty slice yields the shifted seed.
func Pec15(data []byte) [2]byte {
	remainder := uint16(pecSeed)
	for _, b := range data {
		addr := ((remainder >> 7) ^ uint16(b)) & 0xFF
		remainder = (remainder << 8) ^ pecTable[addr]
	}
	remainder <<= 1 // parity adjustment: 15-bit CRC occupies bits 15..1
	return [2]byte{byte(remainder >> 8), byte(remainder)}
}
