// Package serialbridge drives a daisy chain from a host machine
// through a USB serial SPI bridge adapter. It implements the same bus
// and chip-select interfaces as on-target SPI, so the monitor driver
// runs unchanged against hardware hanging off a development PC.
//
// Wire format, both directions:
//
//	[SOP][CMD][LEN_L][LEN_H][DATA...][CHK_L][CHK_H][EOP]
//
// LEN is little-endian over DATA. CHK is the 16-bit 2's complement of
// the byte sum over CMD..DATA. Responses echo the layout with a status
// byte in place of CMD; status 0x00 is success.
package serialbridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"

	"cellstack-go/drivers/ltc681x"
)

// Frame delimiters and commands.
const (
	startOfFrame = 0x01
	endOfFrame   = 0x17

	cmdTransfer  = 0x20 // full-duplex SPI transfer, DATA = TX bytes
	cmdAssertCS  = 0x21
	cmdReleaseCS = 0x22

	statusOK = 0x00

	// maxTransfer bounds a single bridge transfer.
	maxTransfer = 256
)

// Errors returned by the bridge.
var (
	ErrProtocol = errors.New("serialbridge: malformed response frame")
	ErrTooLarge = errors.New("serialbridge: transfer exceeds bridge buffer")
)

// StatusError reports a failure code returned by the bridge firmware.
type StatusError struct {
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("serialbridge: bridge reported status 0x%02X", e.Status)
}

// Bridge is a serial connection to the adapter. Not safe for
// concurrent use; the monitor driver owns it exclusively.
type Bridge struct {
	rw     io.ReadWriter
	closer io.Closer

	// Reused frame buffer for requests and responses.
	buf [maxTransfer + 8]byte
}

// Open connects to the adapter on a serial port, 8N1.
func Open(path string, baud int) (*Bridge, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serialbridge: open %s: %w", path, err)
	}
	b := New(port)
	b.closer = port
	return b, nil
}

// New wraps an already-open connection. Used by tests and custom
// transports.
func New(rw io.ReadWriter) *Bridge { return &Bridge{rw: rw} }

// Close releases the serial port if Open created it.
func (b *Bridge) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// Tx performs one full-duplex SPI transfer through the bridge,
// satisfying drivers.SPI. A nil w transmits all-ones; a nil r discards
// the received bytes.
func (b *Bridge) Tx(w, r []byte) error {
	n := len(w)
	if n == 0 {
		n = len(r)
	}
	if n == 0 {
		return nil
	}
	if n > maxTransfer {
		return ErrTooLarge
	}
	tx := make([]byte, n)
	if w != nil {
		copy(tx, w)
	} else {
		for i := range tx {
			tx[i] = 0xFF
		}
	}
	rx, err := b.roundTrip(cmdTransfer, tx, n)
	if err != nil {
		return err
	}
	if r != nil {
		copy(r, rx)
	}
	return nil
}

// Transfer exchanges a single byte, satisfying drivers.SPI.
func (b *Bridge) Transfer(c byte) (byte, error) {
	rx, err := b.roundTrip(cmdTransfer, []byte{c}, 1)
	if err != nil {
		return 0, err
	}
	return rx[0], nil
}

// csPin drives the bridge's chip-select output.
type csPin struct{ b *Bridge }

func (p csPin) Low() error {
	_, err := p.b.roundTrip(cmdAssertCS, nil, 0)
	return err
}

func (p csPin) High() error {
	_, err := p.b.roundTrip(cmdReleaseCS, nil, 0)
	return err
}

// CS returns the adapter's chip-select line.
func (b *Bridge) CS() ltc681x.OutputPin { return csPin{b} }

// roundTrip sends one command frame and reads the response, verifying
// framing and checksum. want is the expected response data length.
func (b *Bridge) roundTrip(cmd byte, data []byte, want int) ([]byte, error) {
	frame := b.buf[:0]
	frame = append(frame, startOfFrame, cmd)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))
	frame = append(frame, data...)
	frame = binary.LittleEndian.AppendUint16(frame, checksum(frame[1:]))
	frame = append(frame, endOfFrame)
	if _, err := b.rw.Write(frame); err != nil {
		return nil, fmt.Errorf("serialbridge: write: %w", err)
	}

	head := b.buf[:4]
	if _, err := io.ReadFull(b.rw, head); err != nil {
		return nil, fmt.Errorf("serialbridge: read header: %w", err)
	}
	if head[0] != startOfFrame {
		return nil, ErrProtocol
	}
	status := head[1]
	n := int(binary.LittleEndian.Uint16(head[2:4]))
	if n > maxTransfer {
		return nil, ErrProtocol
	}
	rest := b.buf[4 : 4+n+3]
	if _, err := io.ReadFull(b.rw, rest); err != nil {
		return nil, fmt.Errorf("serialbridge: read body: %w", err)
	}
	if rest[n+2] != endOfFrame {
		return nil, ErrProtocol
	}
	if got := binary.LittleEndian.Uint16(rest[n : n+2]); got != checksum(b.buf[1:4+n]) {
		return nil, ErrProtocol
	}
	if status != statusOK {
		return nil, &StatusError{Status: status}
	}
	if n != want {
		return nil, ErrProtocol
	}
	return rest[:n], nil
}

// checksum is the 16-bit 2's complement of the byte sum.
func checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return 1 + (0xFFFF ^ sum)
}
