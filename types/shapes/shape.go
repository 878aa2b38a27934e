// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the typed descriptor of values flowing through a
// computation graph and of concrete tensors.
//
// A Shape is a DType (the element kind, from github.com/gomlx/gopjrt/dtypes) plus the
// dimensions of each axis. Symbolic graph values may leave some dimensions undefined
// until call time: those are marked with UnknownDim.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension. Axis 0 is the leading one.
//   - Dimension: the size of one axis.
//   - DType: the data type of the unit element.
//   - Scalar: a shape with no axes, a single value of the associated DType.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// UnknownDim marks an axis whose dimension is only known at call time.
// Shapes with unknown dimensions are valid for graph values, but not for tensors.
const UnknownDim = -1

// Shape represents the shape of a tensor or of a symbolic graph value.
//
// Use Make to create a new shape. The zero value is invalid (Ok returns false).
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape with the given dtype and dimensions.
// Dimensions must be > 0 or UnknownDim; anything else panics.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for _, dim := range dimensions {
		if dim <= 0 && dim != UnknownDim {
			exceptions.Panicf("shapes.Make(%s): invalid dimension %d, must be > 0 or UnknownDim", s, dim)
		}
	}
	return s
}

// Scalar returns a scalar Shape for the given dtype.
func Scalar(dtype dtypes.DType) Shape {
	return Shape{DType: dtype}
}

// Invalid returns an invalid shape: Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape has rank 0.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// IsFullyDefined reports whether no axis is UnknownDim.
// Only fully defined shapes can back concrete tensors.
func (s Shape) IsFullyDefined() bool {
	if !s.Ok() {
		return false
	}
	return !slices.Contains(s.Dimensions, UnknownDim)
}

// Dim returns the dimension of the given axis. Negative axes count from the end,
// so Dim(-1) is the last axis. It panics for an out-of-bounds axis.
func (s Shape) Dim(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += s.Rank()
	}
	if adjusted < 0 || adjusted >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjusted]
}

// Size returns the number of elements held by the shape.
// It panics if the shape is not fully defined.
func (s Shape) Size() int {
	if !s.IsFullyDefined() {
		exceptions.Panicf("Shape.Size() of %s: shape has unknown dimensions", s)
	}
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

// Memory returns the number of bytes needed to store the shape's data.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// Equal compares dtype and dimensions.
func (s Shape) Equal(other Shape) bool {
	return s.DType == other.DType && slices.Equal(s.Dimensions, other.Dimensions)
}

// CompatibleWith reports whether a concrete shape matches this (possibly partially
// defined) shape: same dtype and rank, and every defined axis must agree.
func (s Shape) CompatibleWith(concrete Shape) bool {
	if s.DType != concrete.DType || s.Rank() != concrete.Rank() {
		return false
	}
	for axis, dim := range s.Dimensions {
		if dim != UnknownDim && dim != concrete.Dimensions[axis] {
			return false
		}
	}
	return true
}

// Shape returns a shallow copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// String implements fmt.Stringer, pretty-printing the shape.
func (s Shape) String() string {
	if !s.Ok() {
		return "(invalid shape)"
	}
	if s.IsScalar() {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, 0, s.Rank())
	for _, dim := range s.Dimensions {
		if dim == UnknownDim {
			parts = append(parts, "?")
		} else {
			parts = append(parts, fmt.Sprintf("%d", dim))
		}
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}

// HasShape is an interface for anything that has an associated Shape. Shape itself
// implements it, as do tensors and graph values.
type HasShape interface {
	Shape() Shape
}
