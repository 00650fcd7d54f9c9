package ectransport

import "sync"

// Shared serializes access to an EcRW between the reader and the writer.
// The mutex is held for the duration of a single logical exchange and
// never across multiple calls — the lock is acquired fresh for every
// ReadBytes/WriteBytes.
type Shared struct {
	mu  sync.Mutex
	dev EcRW
}

func NewShared(dev EcRW) *Shared {
	return &Shared{dev: dev}
}

func (s *Shared) ReadBytes(offset uint8, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.ReadBytes(offset, buf)
}

func (s *Shared) WriteBytes(offset uint8, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.WriteBytes(offset, buf)
}

func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Close()
}
