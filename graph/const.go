// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/types/shapes"
	"github.com/symtensor/symtensor/types/tensors"
)

// ConstOp embeds a fixed tensor in the graph. The value is a static parameter: it is
// not an input of the node, and it is the same for every invocation.
type ConstOp struct {
	Value *tensors.Tensor
}

// Type implements Op.
func (op *ConstOp) Type() backends.OpType { return backends.OpTypeConstant }

// InferShapes implements Op.
func (op *ConstOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 0 {
		return nil, errors.Errorf("Constant takes no inputs, got %d", len(inputs))
	}
	return []shapes.Shape{op.Value.Shape()}, nil
}

// Const creates a constant value in the graph holding the given tensor.
//
// The tensor is referenced, not copied: it must not be mutated after this call.
func Const(t *tensors.Tensor) *Value {
	return applyOne(&ConstOp{Value: t})
}

// ConstValue creates a constant from a Go scalar or (nested) slices.
// See tensors.FromValue for the accepted values.
func ConstValue(value any) *Value {
	return Const(tensors.FromValue(value))
}

// ConstAs creates a scalar constant with the given value, cast to the dtype of the
// reference value. Handy for mixed expressions like Sub(ConstAs(x, 1), x).
func ConstAs(reference *Value, value float64) *Value {
	return Const(scalarOfDType(reference.DType(), value))
}

// scalarOfDType builds a scalar tensor of the given dtype from a float64.
func scalarOfDType(dtype dtypes.DType, value float64) *tensors.Tensor {
	switch dtype {
	case dtypes.Bool:
		return tensors.FromScalar(value != 0)
	case dtypes.Int8:
		return tensors.FromScalar(int8(value))
	case dtypes.Int16:
		return tensors.FromScalar(int16(value))
	case dtypes.Int32:
		return tensors.FromScalar(int32(value))
	case dtypes.Int64:
		return tensors.FromScalar(int64(value))
	case dtypes.Uint8:
		return tensors.FromScalar(uint8(value))
	case dtypes.Uint16:
		return tensors.FromScalar(uint16(value))
	case dtypes.Uint32:
		return tensors.FromScalar(uint32(value))
	case dtypes.Uint64:
		return tensors.FromScalar(uint64(value))
	case dtypes.Float16:
		return tensors.FromScalar(float16.Fromfloat32(float32(value)))
	case dtypes.BFloat16:
		return tensors.FromScalar(bfloat16.FromFloat32(float32(value)))
	case dtypes.Float32:
		return tensors.FromScalar(float32(value))
	case dtypes.Float64:
		return tensors.FromScalar(value)
	default:
		exceptions.Panicf("graph.ConstAs: unsupported dtype %s", dtype)
	}
	return nil
}

// IdentityOp passes its input through unchanged.
type IdentityOp struct{}

// Type implements Op.
func (op IdentityOp) Type() backends.OpType { return backends.OpTypeIdentity }

// InferShapes implements Op.
func (op IdentityOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("Identity takes 1 input, got %d", len(inputs))
	}
	return []shapes.Shape{inputs[0].Clone()}, nil
}

// Identity returns a value equal to x, computed through an explicit graph node.
func Identity(x *Value) *Value {
	return applyOne(IdentityOp{}, x)
}
