package tensor

import "unsafe"

// Float32FromBytes returns a float32 slice that shares memory with b.
// Trailing bytes that do not form a whole element are ignored.
func Float32FromBytes(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
