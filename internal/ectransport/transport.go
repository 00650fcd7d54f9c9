// Package ectransport implements byte-accurate access to an ACPI Embedded
// Controller across its three mutually exclusive back-ends.
package ectransport

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// Mode selects which EC back-end to use.
type Mode string

const (
	ModeAuto    Mode = "Auto"
	ModeAcpiEc  Mode = "AcpiEc"
	ModeEcSys   Mode = "EcSys"
	ModeRawPort Mode = "RawPort"
)

const (
	AcpiEcPath  = "/dev/ec"
	EcSysPath   = "/sys/kernel/debug/ec/ec0/io"
	RawPortPath = "/dev/port"
)

// EcRW is the transport contract C4/C5 depend on: byte-accurate,
// offset-addressed reads and writes, identical across all three back-ends.
type EcRW interface {
	ReadBytes(offset uint8, buf []byte) error
	WriteBytes(offset uint8, buf []byte) error
	io.Closer
}

// OpenError reports that an EC path could not be opened.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open %s: %v", e.Path, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// plainFileRW implements EcRW over an ordinary seekable device file, the
// contract shared by AcpiEc and EcSys.
type plainFileRW struct {
	path string
	f    *os.File
}

func openPlainFile(path string) (*plainFileRW, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	return &plainFileRW{path: path, f: f}, nil
}

func (p *plainFileRW) ReadBytes(offset uint8, buf []byte) error {
	if _, err := p.f.Seek(int64(offset), io.SeekStart); err != nil {
		return &IOError{Op: "seek", Path: p.path, Err: err}
	}
	if _, err := io.ReadFull(p.f, buf); err != nil {
		return &IOError{Op: "read", Path: p.path, Err: err}
	}
	return nil
}

func (p *plainFileRW) WriteBytes(offset uint8, buf []byte) error {
	if _, err := p.f.Seek(int64(offset), io.SeekStart); err != nil {
		return &IOError{Op: "seek", Path: p.path, Err: err}
	}
	if _, err := p.f.Write(buf); err != nil {
		return &IOError{Op: "write", Path: p.path, Err: err}
	}
	return nil
}

func (p *plainFileRW) Close() error { return p.f.Close() }

// IOError reports a failed EC exchange.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("ec %s %s: %v", e.Op, e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// OpenAcpiEc opens /dev/ec, a plain seek+rw device file.
func OpenAcpiEc() (EcRW, error) { return openPlainFile(AcpiEcPath) }

// OpenEcSys opens the debugfs EC file exposed by the ec_sys kernel module,
// with the identical seek+rw contract as AcpiEc.
func OpenEcSys() (EcRW, error) { return openPlainFile(EcSysPath) }

// Open picks a back-end according to mode. In ModeAuto it tries
// AcpiEc -> EcSys -> RawPort in that order.
func Open(mode Mode) (EcRW, error) {
	switch mode {
	case ModeAcpiEc:
		return OpenAcpiEc()
	case ModeEcSys:
		return OpenEcSys()
	case ModeRawPort:
		return OpenRawPort()
	case ModeAuto, "":
		if rw, err := OpenAcpiEc(); err == nil {
			log.Debug().Str("backend", "AcpiEc").Msg("ec transport selected")
			return rw, nil
		}
		if rw, err := OpenEcSys(); err == nil {
			log.Debug().Str("backend", "EcSys").Msg("ec transport selected")
			return rw, nil
		}
		rw, err := OpenRawPort()
		if err != nil {
			return nil, fmt.Errorf("auto-detect ec transport: all backends failed, last error: %w", err)
		}
		log.Debug().Str("backend", "RawPort").Msg("ec transport selected")
		return rw, nil
	default:
		return nil, fmt.Errorf("unknown ec access mode %q", mode)
	}
}
