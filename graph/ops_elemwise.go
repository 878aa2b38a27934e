// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/types/shapes"
)

// ElemwiseOp is the operation behind all elementwise nodes: unary math, binary math
// and comparisons. The OpType field selects the concrete operation.
//
// Binary operations broadcast a scalar operand against the other operand's shape;
// otherwise operand shapes must match axis by axis (axes unknown at graph time are
// checked at call time).
type ElemwiseOp struct {
	OpType backends.OpType
}

// Type implements Op.
func (op ElemwiseOp) Type() backends.OpType { return op.OpType }

var (
	elemwiseUnaryOps = map[backends.OpType]bool{
		backends.OpTypeNeg:   true,
		backends.OpTypeAbs:   true,
		backends.OpTypeExp:   true,
		backends.OpTypeLog:   true,
		backends.OpTypeLog1p: true,
	}
	elemwiseBinaryOps = map[backends.OpType]bool{
		backends.OpTypeAdd:      true,
		backends.OpTypeSub:      true,
		backends.OpTypeMul:      true,
		backends.OpTypeDiv:      true,
		backends.OpTypeFloorDiv: true,
	}
	comparisonOps = map[backends.OpType]bool{
		backends.OpTypeGreaterThan:    true,
		backends.OpTypeGreaterOrEqual: true,
		backends.OpTypeLessThan:       true,
		backends.OpTypeLessOrEqual:    true,
		backends.OpTypeEqual:          true,
	}
)

// InferShapes implements Op.
func (op ElemwiseOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	switch {
	case elemwiseUnaryOps[op.OpType]:
		if len(inputs) != 1 {
			return nil, errors.Errorf("%s takes 1 input, got %d", op.OpType, len(inputs))
		}
		return []shapes.Shape{inputs[0].Clone()}, nil
	case elemwiseBinaryOps[op.OpType], comparisonOps[op.OpType]:
		if len(inputs) != 2 {
			return nil, errors.Errorf("%s takes 2 inputs, got %d", op.OpType, len(inputs))
		}
		out, err := broadcastShapes(op.OpType, inputs[0], inputs[1])
		if err != nil {
			return nil, err
		}
		if comparisonOps[op.OpType] {
			out.DType = dtypes.Bool
		}
		return []shapes.Shape{out}, nil
	default:
		return nil, errors.Errorf("unknown elementwise operation %s", op.OpType)
	}
}

// broadcastShapes merges the shapes of a binary elementwise operation: a scalar
// operand broadcasts against the other shape; otherwise ranks must match and each
// axis merges (equal, or one side unknown).
func broadcastShapes(opType backends.OpType, lhs, rhs shapes.Shape) (shapes.Shape, error) {
	if lhs.DType != rhs.DType {
		return shapes.Invalid(), errors.Errorf("%s: mismatched dtypes %s and %s", opType, lhs.DType, rhs.DType)
	}
	if lhs.IsScalar() {
		return rhs.Clone(), nil
	}
	if rhs.IsScalar() {
		return lhs.Clone(), nil
	}
	if lhs.Rank() != rhs.Rank() {
		return shapes.Invalid(), errors.Errorf("%s: mismatched ranks %s and %s", opType, lhs, rhs)
	}
	out := lhs.Clone()
	for axis := range out.Dimensions {
		lhsDim, rhsDim := lhs.Dimensions[axis], rhs.Dimensions[axis]
		switch {
		case lhsDim == rhsDim:
		case lhsDim == shapes.UnknownDim:
			out.Dimensions[axis] = rhsDim
		case rhsDim == shapes.UnknownDim:
			// Keep lhsDim.
		default:
			return shapes.Invalid(), errors.Errorf("%s: incompatible shapes %s and %s at axis %d",
				opType, lhs, rhs, axis)
		}
	}
	return out, nil
}

// Add returns x+y, elementwise.
func Add(x, y *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeAdd}, x, y) }

// Sub returns x-y, elementwise.
func Sub(x, y *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeSub}, x, y) }

// Mul returns x*y, elementwise.
func Mul(x, y *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeMul}, x, y) }

// Div returns x/y, elementwise.
func Div(x, y *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeDiv}, x, y) }

// FloorDiv returns x/y rounded toward negative infinity, elementwise. For integer
// dtypes this is floor division; for floats it is Floor(x/y).
func FloorDiv(x, y *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeFloorDiv}, x, y) }

// Neg returns -x, elementwise.
func Neg(x *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeNeg}, x) }

// Abs returns |x|, elementwise.
func Abs(x *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeAbs}, x) }

// Exp returns e^x, elementwise.
func Exp(x *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeExp}, x) }

// Log returns the natural logarithm of x, elementwise.
func Log(x *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeLog}, x) }

// Log1p returns log(1+x), elementwise.
func Log1p(x *Value) *Value { return applyOne(ElemwiseOp{backends.OpTypeLog1p}, x) }

// GreaterThan returns x>y as Bool, elementwise.
func GreaterThan(x, y *Value) *Value {
	return applyOne(ElemwiseOp{backends.OpTypeGreaterThan}, x, y)
}

// GreaterOrEqual returns x>=y as Bool, elementwise.
func GreaterOrEqual(x, y *Value) *Value {
	return applyOne(ElemwiseOp{backends.OpTypeGreaterOrEqual}, x, y)
}

// LessThan returns x<y as Bool, elementwise.
func LessThan(x, y *Value) *Value {
	return applyOne(ElemwiseOp{backends.OpTypeLessThan}, x, y)
}

// LessOrEqual returns x<=y as Bool, elementwise.
func LessOrEqual(x, y *Value) *Value {
	return applyOne(ElemwiseOp{backends.OpTypeLessOrEqual}, x, y)
}

// Equal returns x==y as Bool, elementwise.
func Equal(x, y *Value) *Value {
	return applyOne(ElemwiseOp{backends.OpTypeEqual}, x, y)
}
