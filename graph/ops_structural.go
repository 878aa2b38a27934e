// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/types/shapes"
)

// NewAxis, used in a DimShuffle order, inserts a new axis of dimension 1.
const NewAxis = -1

// DimShuffleOp reorders, drops and inserts axes in one structural operation, without
// touching element values. Order lists, for each output axis, the input axis it takes
// its data from, or NewAxis for an inserted axis of dimension 1. Input axes absent
// from Order are dropped and must have dimension 1.
type DimShuffleOp struct {
	Order []int
}

// Type implements Op.
func (op *DimShuffleOp) Type() backends.OpType { return backends.OpTypeDimShuffle }

// InferShapes implements Op.
func (op *DimShuffleOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("DimShuffle takes 1 input, got %d", len(inputs))
	}
	input := inputs[0]
	used := make([]bool, input.Rank())
	outDims := make([]int, len(op.Order))
	for ii, axis := range op.Order {
		if axis == NewAxis {
			outDims[ii] = 1
			continue
		}
		if axis < 0 || axis >= input.Rank() {
			return nil, errors.Errorf("DimShuffle(%v): axis %d out of range for input %s", op.Order, axis, input)
		}
		if used[axis] {
			return nil, errors.Errorf("DimShuffle(%v): axis %d is repeated", op.Order, axis)
		}
		used[axis] = true
		outDims[ii] = input.Dimensions[axis]
	}
	for axis, wasUsed := range used {
		if wasUsed {
			continue
		}
		// Dropped axes must be of dimension 1; unknown dims are checked at call time.
		if dim := input.Dimensions[axis]; dim != 1 && dim != shapes.UnknownDim {
			return nil, errors.Errorf("DimShuffle(%v): dropped axis %d of input %s has dimension %d, must be 1",
				op.Order, axis, input, dim)
		}
	}
	return []shapes.Shape{shapes.Make(input.DType, outDims...)}, nil
}

// DimShuffle reorders, drops and inserts axes of x. See DimShuffleOp for the meaning
// of order.
//
// Examples, for a matrix x: DimShuffle(x, 1, 0) transposes it;
// DimShuffle(x, 0, 1, NewAxis) appends an axis of dimension 1.
func DimShuffle(x *Value, order ...int) *Value {
	return applyOne(&DimShuffleOp{Order: order}, x)
}

// Transpose reverses all axes of x, e.g. the usual matrix transpose for rank 2.
func Transpose(x *Value) *Value {
	order := make([]int, x.Rank())
	for ii := range order {
		order[ii] = x.Rank() - 1 - ii
	}
	return DimShuffle(x, order...)
}

// ExpandDims inserts a new axis of dimension 1 at the given position (negative counts
// from the end, with -1 meaning appended last).
func ExpandDims(x *Value, axis int) *Value {
	rank := x.Rank()
	if axis < 0 {
		axis += rank + 1
	}
	if axis < 0 || axis > rank {
		exceptions.Panicf("graph.ExpandDims: axis %d out of range for rank %d", axis, rank)
	}
	order := make([]int, 0, rank+1)
	for ii := 0; ii < axis; ii++ {
		order = append(order, ii)
	}
	order = append(order, NewAxis)
	for ii := axis; ii < rank; ii++ {
		order = append(order, ii)
	}
	return DimShuffle(x, order...)
}

// ReshapeUnknownDim can be given as one of the Reshape dimensions: that axis takes
// whatever dimension makes the total size match the input.
const ReshapeUnknownDim = -1

// ReshapeOp reinterprets the input's elements, in row-major order, with new
// dimensions. The total size must be preserved.
type ReshapeOp struct {
	Dimensions []int
}

// Type implements Op.
func (op *ReshapeOp) Type() backends.OpType { return backends.OpTypeReshape }

// InferShapes implements Op.
func (op *ReshapeOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("Reshape takes 1 input, got %d", len(inputs))
	}
	input := inputs[0]
	numUnknown := 0
	knownSize := 1
	outDims := make([]int, len(op.Dimensions))
	for ii, dim := range op.Dimensions {
		outDims[ii] = dim
		if dim == ReshapeUnknownDim {
			numUnknown++
			continue
		}
		if dim <= 0 {
			return nil, errors.Errorf("Reshape(%v): invalid dimension %d", op.Dimensions, dim)
		}
		knownSize *= dim
	}
	if numUnknown > 1 {
		return nil, errors.Errorf("Reshape(%v): at most one dimension can be left unknown", op.Dimensions)
	}
	if input.IsFullyDefined() {
		inputSize := input.Size()
		if numUnknown == 1 {
			if inputSize%knownSize != 0 {
				return nil, errors.Errorf("Reshape(%v): input %s size %d is not a multiple of %d",
					op.Dimensions, input, inputSize, knownSize)
			}
			for ii, dim := range outDims {
				if dim == ReshapeUnknownDim {
					outDims[ii] = inputSize / knownSize
				}
			}
		} else if knownSize != inputSize {
			return nil, errors.Errorf("Reshape(%v): input %s has %d elements, new shape has %d",
				op.Dimensions, input, inputSize, knownSize)
		}
	} else if numUnknown == 1 {
		// The unknown axis is resolved at call time.
		for ii, dim := range outDims {
			if dim == ReshapeUnknownDim {
				outDims[ii] = shapes.UnknownDim
			}
		}
	}
	return []shapes.Shape{shapes.Make(input.DType, outDims...)}, nil
}

// Reshape reinterprets x's elements, in row-major order, with the new dimensions.
// One dimension may be ReshapeUnknownDim, taking whatever makes the size match.
func Reshape(x *Value, dimensions ...int) *Value {
	return applyOne(&ReshapeOp{Dimensions: dimensions}, x)
}
