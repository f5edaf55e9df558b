package cpu

import "github.com/zstreet87/TopoModelX/backend"

// storage is host memory backing a tensor.
type storage struct {
	buf []byte
}

// Alloc returns zeroed CPU storage of byteLen bytes.
func Alloc(byteLen int) backend.Storage {
	return &storage{buf: make([]byte, byteLen)}
}

func (s *storage) Device() backend.Device { return backend.CPU0 }
func (s *storage) ByteLen() int           { return len(s.buf) }
func (s *storage) Bytes() []byte          { return s.buf }
func (s *storage) Free()                  { s.buf = nil }
