package tensor

import "github.com/zstreet87/TopoModelX/core"

// Re-export core types so callers can use tensor.Shape etc.
// without importing core directly.

type (
	// Shape is core.Shape.
	Shape = core.Shape
	// Strides is core.Strides.
	Strides = core.Strides
	// DType is core.DType.
	DType = core.DType
)

const Float32 = core.Float32
