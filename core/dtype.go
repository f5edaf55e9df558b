package core

import "fmt"

// DType is a tensor element type. Only float32 is computed on.
type DType uint8

const Float32 DType = 0

// Size returns the byte size of one element, 0 for unknown types.
func (d DType) Size() uintptr {
	if d == Float32 {
		return 4
	}
	return 0
}

func (d DType) String() string {
	if d == Float32 {
		return "float32"
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}
