package backend

import (
	"errors"
	"fmt"

	"github.com/zstreet87/TopoModelX/core"
)

// DeviceType identifies the kind of hardware. Backends register per type.
type DeviceType uint8

const CPU DeviceType = 0

func (d DeviceType) String() string {
	if d == CPU {
		return "cpu"
	}
	return fmt.Sprintf("device(%d)", uint8(d))
}

// Device identifies a specific device of a type.
type Device struct {
	Type  DeviceType
	Index int
}

// CPU0 is the default CPU device.
var CPU0 = Device{Type: CPU, Index: 0}

// Storage represents raw memory on a device.
type Storage interface {
	Device() Device
	Bytes() []byte
	ByteLen() int
	Free()
}

// Backend is the contract every hardware backend must implement.
// All arithmetic is float32 over contiguous storage unless strides are passed.
type Backend interface {
	Name() string
	DeviceType() DeviceType

	Alloc(byteLen int) (Storage, error)
	Free(s Storage)
	Copy(dst, src Storage, byteLen int) error

	// Unary (dst, src, nElems)
	Tanh(dst, src Storage, nElems int) error
	Relu(dst, src Storage, nElems int) error
	Sigmoid(dst, src Storage, nElems int) error
	Scale(dst, src Storage, nElems int, alpha float32) error

	// Binary with broadcasting: dst = a op b (shape = broadcast(aShape, bShape))
	Add(dst, a, b Storage, aShape, bShape core.Shape, aStrides, bStrides core.Strides, outShape core.Shape) error
	Mul(dst, a, b Storage, aShape, bShape core.Shape, aStrides, bStrides core.Strides, outShape core.Shape) error

	// Sum reduces along axis; axis -1 means all axes.
	Sum(dst, src Storage, srcShape core.Shape, srcStrides core.Strides, axis int) error

	// MatMul: C = A @ B. A [batch, M, K], B [batch, K, N], C [batch, M, N]. C is overwritten.
	MatMul(dst, a, b Storage, batchSize, M, N, K int) error

	// Transpose2D writes the [cols, rows] transpose of a contiguous [rows, cols] matrix.
	Transpose2D(dst, src Storage, rows, cols int) error

	// DivRows: dst[i, j] = src[i, j] / denom[i]; rows with a zero denominator become zero.
	DivRows(dst, src, denom Storage, rows, cols int) error

	Fill(dst Storage, nElems int, value float32) error
}

var registry = make(map[DeviceType]Backend)

// Register adds a backend for its device type.
func Register(b Backend) {
	registry[b.DeviceType()] = b
}

// Get returns the backend for a device type.
func Get(dt DeviceType) (Backend, error) {
	b, ok := registry[dt]
	if !ok {
		return nil, fmt.Errorf("no backend registered for device type %v", dt)
	}
	return b, nil
}

// GetForDevice returns the backend that handles the given device.
func GetForDevice(d Device) (Backend, error) {
	return Get(d.Type)
}

// ErrUnsupported is returned when an operation is not supported.
var ErrUnsupported = errors.New("operation not supported")
