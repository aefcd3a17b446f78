package serialbridge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"tinygo.org/x/drivers"

	"cellstack-go/drivers/ltc681x"
)

var (
	_ drivers.SPI       = (*Bridge)(nil)
	_ ltc681x.OutputPin = csPin{}
)

// fakeAdapter emulates the bridge firmware: it parses each request
// frame written to it and queues the matching response frame for the
// next Read. handle maps a command and its data to a status and
// response data.
type fakeAdapter struct {
	t      *testing.T
	handle func(cmd byte, data []byte) (byte, []byte)

	in   bytes.Buffer
	out  bytes.Buffer
	cmds []byte
}

func (f *fakeAdapter) Write(p []byte) (int, error) {
	f.in.Write(p)
	for f.in.Len() >= 7 {
		raw := f.in.Bytes()
		if raw[0] != startOfFrame {
			f.t.Fatalf("request does not start with SOP: 0x%02X", raw[0])
		}
		n := int(binary.LittleEndian.Uint16(raw[2:4]))
		total := 4 + n + 3
		if f.in.Len() < total {
			break
		}
		frame := make([]byte, total)
		f.in.Read(frame)
		if frame[total-1] != endOfFrame {
			f.t.Fatalf("request does not end with EOP: 0x%02X", frame[total-1])
		}
		if got := binary.LittleEndian.Uint16(frame[4+n : 6+n]); got != checksum(frame[1:4+n]) {
			f.t.Fatalf("request checksum mismatch: got 0x%04X", got)
		}
		cmd, data := frame[1], frame[4:4+n]
		f.cmds = append(f.cmds, cmd)
		status, resp := f.handle(cmd, data)
		f.respond(status, resp)
	}
	return len(p), nil
}

func (f *fakeAdapter) respond(status byte, data []byte) {
	frame := []byte{startOfFrame, status}
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))
	frame = append(frame, data...)
	frame = binary.LittleEndian.AppendUint16(frame, checksum(frame[1:]))
	frame = append(frame, endOfFrame)
	f.out.Write(frame)
}

func (f *fakeAdapter) Read(p []byte) (int, error) { return f.out.Read(p) }

// echoAdapter responds to transfers with each TX byte incremented,
// so tests can tell RX data came back through the frame path.
func echoAdapter(t *testing.T) *fakeAdapter {
	return &fakeAdapter{t: t, handle: func(cmd byte, data []byte) (byte, []byte) {
		if cmd != cmdTransfer {
			return statusOK, nil
		}
		resp := make([]byte, len(data))
		for i, b := range data {
			resp[i] = b + 1
		}
		return statusOK, resp
	}}
}

func TestTx_RoundTrip(t *testing.T) {
	fake := echoAdapter(t)
	b := New(fake)

	w := []byte{0x10, 0x20, 0x30}
	r := make([]byte, 3)
	if err := b.Tx(w, r); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if want := []byte{0x11, 0x21, 0x31}; !bytes.Equal(r, want) {
		t.Fatalf("rx = % X, want % X", r, want)
	}
}

func TestTx_NilWriteSendsOnes(t *testing.T) {
	var seen []byte
	fake := &fakeAdapter{t: t, handle: func(cmd byte, data []byte) (byte, []byte) {
		seen = append([]byte(nil), data...)
		return statusOK, make([]byte, len(data))
	}}
	b := New(fake)

	r := make([]byte, 4)
	if err := b.Tx(nil, r); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if want := []byte{0xFF, 0xFF, 0xFF, 0xFF}; !bytes.Equal(seen, want) {
		t.Fatalf("bridge saw % X, want % X", seen, want)
	}
}

func TestTransfer_SingleByte(t *testing.T) {
	b := New(echoAdapter(t))
	got, err := b.Transfer(0x7F)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got != 0x80 {
		t.Fatalf("Transfer = 0x%02X, want 0x80", got)
	}
}

func TestCS_IssuesAssertAndRelease(t *testing.T) {
	fake := &fakeAdapter{t: t, handle: func(cmd byte, data []byte) (byte, []byte) {
		return statusOK, nil
	}}
	b := New(fake)

	cs := b.CS()
	if err := cs.Low(); err != nil {
		t.Fatalf("Low: %v", err)
	}
	if err := cs.High(); err != nil {
		t.Fatalf("High: %v", err)
	}
	if want := []byte{cmdAssertCS, cmdReleaseCS}; !bytes.Equal(fake.cmds, want) {
		t.Fatalf("commands = % X, want % X", fake.cmds, want)
	}
}

func TestRoundTrip_StatusError(t *testing.T) {
	fake := &fakeAdapter{t: t, handle: func(cmd byte, data []byte) (byte, []byte) {
		return 0x05, nil
	}}
	b := New(fake)

	err := b.Tx([]byte{0x00}, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != 0x05 {
		t.Fatalf("err = %v, want StatusError 0x05", err)
	}
}

func TestRoundTrip_BadChecksum(t *testing.T) {
	fake := echoAdapter(t)
	b := New(fake)
	if err := b.Tx([]byte{0x01}, nil); err != nil {
		t.Fatalf("prime: %v", err)
	}

	// Corrupt a canned response and replay it by hand.
	fake.respond(statusOK, []byte{0xAB})
	raw := fake.out.Bytes()
	raw[4] ^= 0x01 // flip a data bit, checksum now stale
	if err := b.Tx([]byte{0x02}, nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestTx_TooLarge(t *testing.T) {
	b := New(echoAdapter(t))
	if err := b.Tx(make([]byte, maxTransfer+1), nil); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestDriverOverBridge(t *testing.T) {
	// The chain driver should frame commands through the bridge
	// untouched. Emulate a bridge whose SPI bus answers reads with
	// all-zero frames plus a valid checksum.
	frame := ltc681x.Pec15(make([]byte, 6))
	reply := append(make([]byte, 6), frame[0], frame[1])
	fake := &fakeAdapter{t: t, handle: func(cmd byte, data []byte) (byte, []byte) {
		if cmd != cmdTransfer {
			return statusOK, nil
		}
		if len(data) == len(reply) {
			return statusOK, reply
		}
		return statusOK, make([]byte, len(data))
	}}
	b := New(fake)

	dev, err := ltc681x.New(b, b.CS(), ltc681x.Config{ChainLength: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := dev.ReadRegisterGroup(ltc681x.CellVoltageGroupA)
	if err != nil {
		t.Fatalf("ReadRegisterGroup: %v", err)
	}
	if len(groups) != 1 || groups[0] != ([3]uint16{}) {
		t.Fatalf("groups = %v, want one zero group", groups)
	}
	if want := []byte{cmdAssertCS, cmdTransfer, cmdTransfer, cmdReleaseCS}; !bytes.Equal(fake.cmds, want) {
		t.Fatalf("commands = % X, want % X", fake.cmds, want)
	}
}
