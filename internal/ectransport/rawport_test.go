package ectransport

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortIO simulates /dev/port for RawPort: reads from commandPort return
// a scripted status byte sequence, every write (to either port) appends to
// a log, and reads from dataPort return scripted response bytes.
type fakePortIO struct {
	statusSeq []byte // status bytes returned on successive reads of commandPort
	statusPos int

	dataReads  []byte // bytes to return on successive reads of dataPort
	dataPos    int
	writeLog   []byte // bytes written to dataPort/commandPort, in order
	seekTarget int64
}

func (f *fakePortIO) Seek(offset int64, whence int) (int64, error) {
	f.seekTarget = offset
	return offset, nil
}

func (f *fakePortIO) Read(p []byte) (int, error) {
	switch f.seekTarget {
	case commandPort:
		if f.statusPos >= len(f.statusSeq) {
			return 0, io.EOF
		}
		p[0] = f.statusSeq[f.statusPos]
		f.statusPos++
		return 1, nil
	case dataPort:
		if f.dataPos >= len(f.dataReads) {
			return 0, io.EOF
		}
		p[0] = f.dataReads[f.dataPos]
		f.dataPos++
		return 1, nil
	default:
		return 0, io.EOF
	}
}

func (f *fakePortIO) Write(p []byte) (int, error) {
	f.writeLog = append(f.writeLog, p...)
	return len(p), nil
}

// readyStatus is a status byte with output-buffer-full set and
// input-buffer-full clear: both waitRead and waitWrite succeed immediately.
const readyStatus = outputBufferFull

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestRawPortEcReadByte(t *testing.T) {
	dev := &fakePortIO{
		statusSeq: repeat(readyStatus, 64),
		dataReads: []byte{0x42},
	}
	rp := newRawPortOver(dev)

	got, err := rp.ecReadByte(0x10)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), got)
}

func TestRawPortEcWriteByte(t *testing.T) {
	dev := &fakePortIO{statusSeq: repeat(readyStatus, 64)}
	rp := newRawPortOver(dev)

	require.NoError(t, rp.ecWriteByte(0x20, 0x99))
	require.Len(t, dev.writeLog, 3)
	assert.Equal(t, []byte{ecCommandWrite, 0x20, 0x99}, dev.writeLog)
}

// TestRawPortReadBytesExactExchangeCount verifies ReadBytes(offset, n)
// issues exactly n completed ec_read_byte exchanges.
func TestRawPortReadBytesExactExchangeCount(t *testing.T) {
	dev := &fakePortIO{
		statusSeq: repeat(readyStatus, 256),
		dataReads: []byte{0x01, 0x02, 0x03, 0x04},
	}
	rp := newRawPortOver(dev)

	buf := make([]byte, 4)
	require.NoError(t, rp.ReadBytes(0x00, buf))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf)
	assert.Equal(t, 4, dev.dataPos, "exactly one data-port read per requested byte")
}

// TestRawPortWaitTimeout verifies a status port that never reports ready
// fails with TimeoutError after exactly the bounded spin count, not
// earlier or later.
func TestRawPortWaitTimeout(t *testing.T) {
	dev := &fakePortIO{statusSeq: repeat(inputBufferFull, rawPortTimeout+10)}
	rp := newRawPortOver(dev)

	err := rp.ecWriteByte(0x10, 0x01)
	require.Error(t, err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, rawPortTimeout, dev.statusPos, "exactly rawPortTimeout status polls before giving up")
}
