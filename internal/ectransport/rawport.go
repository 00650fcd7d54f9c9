package ectransport

import (
	"io"
	"os"
)

const (
	ecCommandRead  byte = 0x80
	ecCommandWrite byte = 0x81

	rawPortTimeout = 2000

	commandPort int64 = 0x66
	dataPort    int64 = 0x62

	outputBufferFull byte = 0x01
	inputBufferFull  byte = 0x02
)

// portIO is the minimal seek+read+write contract RawPort needs from
// /dev/port, broken out so tests can substitute an in-memory fake.
type portIO interface {
	io.ReadWriteSeeker
}

// RawPort implements EcRW over /dev/port, which exposes raw I/O ports
// rather than a flat address space. Every exchange is a little state
// machine against the command port (0x66) and data port (0x62).
type RawPort struct {
	dev portIO
	f   *os.File // non-nil when dev was opened by OpenRawPort, for Close
}

// OpenRawPort opens /dev/port for the RawPort protocol.
func OpenRawPort() (EcRW, error) {
	f, err := os.OpenFile(RawPortPath, os.O_RDWR, 0)
	if err != nil {
		return nil, &OpenError{Path: RawPortPath, Err: err}
	}
	return &RawPort{dev: f, f: f}, nil
}

// newRawPortOver wraps an arbitrary portIO, used by tests to exercise the
// protocol without a real /dev/port.
func newRawPortOver(dev portIO) *RawPort {
	return &RawPort{dev: dev}
}

func (r *RawPort) Close() error {
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}

// TimeoutError reports that a wait_* primitive exhausted its poll budget.
type TimeoutError struct {
	Waiting string
}

func (e *TimeoutError) Error() string { return "ec raw port timeout waiting for " + e.Waiting }

// waitRead polls until the status byte's output-buffer-full bit is set,
// i.e. the EC has data ready at the data port (spec's wait_read()).
func (r *RawPort) waitRead() error {
	return r.wait(func(status byte) bool { return status&outputBufferFull != 0 }, "output buffer")
}

// waitWrite polls until the status byte's input-buffer-full bit is clear,
// i.e. the EC is ready to accept a command/data byte (spec's wait_write()).
func (r *RawPort) waitWrite() error {
	return r.wait(func(status byte) bool { return status&inputBufferFull == 0 }, "input buffer")
}

// wait polls the command/status port up to rawPortTimeout times for ready
// to report true.
func (r *RawPort) wait(ready func(status byte) bool, what string) error {
	for i := 0; i < rawPortTimeout; i++ {
		if _, err := r.dev.Seek(commandPort, io.SeekStart); err != nil {
			return &IOError{Op: "seek", Path: RawPortPath, Err: err}
		}
		var status [1]byte
		if _, err := r.dev.Read(status[:]); err != nil {
			return &IOError{Op: "read", Path: RawPortPath, Err: err}
		}
		if ready(status[0]) {
			return nil
		}
	}
	return &TimeoutError{Waiting: what}
}

func (r *RawPort) query(port int64, b byte) error {
	if err := r.waitWrite(); err != nil {
		return err
	}
	if _, err := r.dev.Seek(port, io.SeekStart); err != nil {
		return &IOError{Op: "seek", Path: RawPortPath, Err: err}
	}
	if _, err := r.dev.Write([]byte{b}); err != nil {
		return &IOError{Op: "write", Path: RawPortPath, Err: err}
	}
	return nil
}

func (r *RawPort) ecReadByte(offset uint8) (byte, error) {
	if err := r.query(commandPort, ecCommandRead); err != nil {
		return 0, err
	}
	if err := r.query(dataPort, offset); err != nil {
		return 0, err
	}
	if err := r.waitRead(); err != nil {
		return 0, err
	}
	if err := r.waitWrite(); err != nil {
		return 0, err
	}

	if _, err := r.dev.Seek(dataPort, io.SeekStart); err != nil {
		return 0, &IOError{Op: "seek", Path: RawPortPath, Err: err}
	}
	var b [1]byte
	if _, err := io.ReadFull(r.dev, b[:]); err != nil {
		return 0, &IOError{Op: "read", Path: RawPortPath, Err: err}
	}
	return b[0], nil
}

func (r *RawPort) ecWriteByte(offset, value byte) error {
	if err := r.query(commandPort, ecCommandWrite); err != nil {
		return err
	}
	if err := r.query(dataPort, offset); err != nil {
		return err
	}
	return r.query(dataPort, value)
}

// ReadBytes reads len(buf) bytes starting at offset, one ec_read_byte
// exchange per byte (P4: exactly len(buf) exchanges).
func (r *RawPort) ReadBytes(offset uint8, buf []byte) error {
	pos := offset
	for i := range buf {
		b, err := r.ecReadByte(pos)
		if err != nil {
			return err
		}
		buf[i] = b
		pos++
	}
	return nil
}

// WriteBytes writes buf starting at offset, one ec_write_byte exchange per
// byte.
func (r *RawPort) WriteBytes(offset uint8, buf []byte) error {
	pos := offset
	for _, b := range buf {
		if err := r.ecWriteByte(pos, b); err != nil {
			return err
		}
		pos++
	}
	return nil
}
