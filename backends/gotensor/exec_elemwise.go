// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package gotensor

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/shapes"
)

// The elementwise kernels are specialized by generics at compile (funcify) time:
// the dtype is static, so each node gets a closure over a monomorphized flat loop.
// Only the Float16/BFloat16 paths pay a conversion through float32 per element.

func funcifyUnary(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	apply, err := unaryFlatKernel(node.Type(), node.Inputs()[0].DType())
	if err != nil {
		return nil, err
	}
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		bufs, err := kernelInputs(b, inputs)
		if err != nil {
			return nil, err
		}
		x := bufs[0]
		out := b.pools.get(x.shape, x.deviceNum)
		apply(x.flat, out.flat)
		return []backends.Buffer{out}, nil
	}, nil
}

func unaryFlatKernel(opType backends.OpType, dtype dtypes.DType) (func(in, out any), error) {
	switch opType {
	case backends.OpTypeNeg:
		switch dtype {
		case dtypes.Int8:
			return execNeg[int8], nil
		case dtypes.Int16:
			return execNeg[int16], nil
		case dtypes.Int32:
			return execNeg[int32], nil
		case dtypes.Int64:
			return execNeg[int64], nil
		}
		return floatUnaryKernel(opType, dtype, func(v float64) float64 { return -v })
	case backends.OpTypeAbs:
		switch dtype {
		case dtypes.Int8:
			return execAbs[int8], nil
		case dtypes.Int16:
			return execAbs[int16], nil
		case dtypes.Int32:
			return execAbs[int32], nil
		case dtypes.Int64:
			return execAbs[int64], nil
		case dtypes.Uint8:
			return execCopy[uint8], nil
		case dtypes.Uint16:
			return execCopy[uint16], nil
		case dtypes.Uint32:
			return execCopy[uint32], nil
		case dtypes.Uint64:
			return execCopy[uint64], nil
		}
		return floatUnaryKernel(opType, dtype, math.Abs)
	case backends.OpTypeExp:
		return floatUnaryKernel(opType, dtype, math.Exp)
	case backends.OpTypeLog:
		return floatUnaryKernel(opType, dtype, math.Log)
	case backends.OpTypeLog1p:
		return floatUnaryKernel(opType, dtype, math.Log1p)
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "unary operation %s", opType)
}

// floatUnaryKernel serves the unary operations only defined for float dtypes.
func floatUnaryKernel(opType backends.OpType, dtype dtypes.DType, fn func(float64) float64) (func(in, out any), error) {
	switch dtype {
	case dtypes.Float32:
		return execFloatUnary[float32](fn), nil
	case dtypes.Float64:
		return execFloatUnary[float64](fn), nil
	case dtypes.Float16:
		return func(in, out any) {
			inFlat, outFlat := in.([]float16.Float16), out.([]float16.Float16)
			for ii, v := range inFlat {
				outFlat[ii] = float16.Fromfloat32(float32(fn(float64(v.Float32()))))
			}
		}, nil
	case dtypes.BFloat16:
		return func(in, out any) {
			inFlat, outFlat := in.([]bfloat16.BFloat16), out.([]bfloat16.BFloat16)
			for ii, v := range inFlat {
				outFlat[ii] = bfloat16.FromFloat32(float32(fn(float64(v.Float32()))))
			}
		}, nil
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "operation %s for dtype %s", opType, dtype)
}

func execNeg[T constraints.Signed](in, out any) {
	inFlat, outFlat := in.([]T), out.([]T)
	for ii, v := range inFlat {
		outFlat[ii] = -v
	}
}

func execAbs[T constraints.Signed](in, out any) {
	inFlat, outFlat := in.([]T), out.([]T)
	for ii, v := range inFlat {
		if v < 0 {
			v = -v
		}
		outFlat[ii] = v
	}
}

func execCopy[T any](in, out any) {
	copy(out.([]T), in.([]T))
}

func execFloatUnary[T constraints.Float](fn func(float64) float64) func(in, out any) {
	return func(in, out any) {
		inFlat, outFlat := in.([]T), out.([]T)
		for ii, v := range inFlat {
			outFlat[ii] = T(fn(float64(v)))
		}
	}
}

// broadcastBuffers resolves the runtime output shape of a binary operation: a scalar
// operand broadcasts, otherwise shapes must be equal.
func broadcastBuffers(opType backends.OpType, lhs, rhs *Buffer) (shapes.Shape, error) {
	switch {
	case lhs.shape.IsScalar():
		return rhs.shape, nil
	case rhs.shape.IsScalar(), lhs.shape.Equal(rhs.shape):
		return lhs.shape, nil
	}
	return shapes.Invalid(), errors.Errorf("%s: operand shapes %s and %s don't match", opType, lhs.shape, rhs.shape)
}

func funcifyBinary(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	opType := node.Type()
	apply, err := binaryFlatKernel(opType, node.Inputs()[0].DType())
	if err != nil {
		return nil, err
	}
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		bufs, err := kernelInputs(b, inputs)
		if err != nil {
			return nil, err
		}
		lhs, rhs := bufs[0], bufs[1]
		outShape, err := broadcastBuffers(opType, lhs, rhs)
		if err != nil {
			return nil, err
		}
		out := b.pools.get(outShape, lhs.deviceNum)
		apply(lhs.flat, rhs.flat, out.flat)
		return []backends.Buffer{out}, nil
	}, nil
}

func binaryFlatKernel(opType backends.OpType, dtype dtypes.DType) (func(a, b, out any), error) {
	switch dtype {
	case dtypes.Int8:
		return intBinary[int8](opType)
	case dtypes.Int16:
		return intBinary[int16](opType)
	case dtypes.Int32:
		return intBinary[int32](opType)
	case dtypes.Int64:
		return intBinary[int64](opType)
	case dtypes.Uint8:
		return intBinary[uint8](opType)
	case dtypes.Uint16:
		return intBinary[uint16](opType)
	case dtypes.Uint32:
		return intBinary[uint32](opType)
	case dtypes.Uint64:
		return intBinary[uint64](opType)
	case dtypes.Float32:
		return floatBinary[float32](opType)
	case dtypes.Float64:
		return floatBinary[float64](opType)
	case dtypes.Float16:
		fn, err := float64BinaryFn(opType)
		if err != nil {
			return nil, err
		}
		return execBinary(func(x, y float16.Float16) float16.Float16 {
			return float16.Fromfloat32(float32(fn(float64(x.Float32()), float64(y.Float32()))))
		}), nil
	case dtypes.BFloat16:
		fn, err := float64BinaryFn(opType)
		if err != nil {
			return nil, err
		}
		return execBinary(func(x, y bfloat16.BFloat16) bfloat16.BFloat16 {
			return bfloat16.FromFloat32(float32(fn(float64(x.Float32()), float64(y.Float32()))))
		}), nil
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "operation %s for dtype %s", opType, dtype)
}

func intBinary[T constraints.Integer](opType backends.OpType) (func(a, b, out any), error) {
	switch opType {
	case backends.OpTypeAdd:
		return execBinary(func(x, y T) T { return x + y }), nil
	case backends.OpTypeSub:
		return execBinary(func(x, y T) T { return x - y }), nil
	case backends.OpTypeMul:
		return execBinary(func(x, y T) T { return x * y }), nil
	case backends.OpTypeDiv:
		return execBinary(func(x, y T) T { return x / y }), nil
	case backends.OpTypeFloorDiv:
		return execBinary(floorDivInt[T]), nil
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "binary operation %s", opType)
}

func floatBinary[T constraints.Float](opType backends.OpType) (func(a, b, out any), error) {
	switch opType {
	case backends.OpTypeAdd:
		return execBinary(func(x, y T) T { return x + y }), nil
	case backends.OpTypeSub:
		return execBinary(func(x, y T) T { return x - y }), nil
	case backends.OpTypeMul:
		return execBinary(func(x, y T) T { return x * y }), nil
	case backends.OpTypeDiv:
		return execBinary(func(x, y T) T { return x / y }), nil
	case backends.OpTypeFloorDiv:
		return execBinary(func(x, y T) T { return T(math.Floor(float64(x) / float64(y))) }), nil
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "binary operation %s", opType)
}

func float64BinaryFn(opType backends.OpType) (func(x, y float64) float64, error) {
	switch opType {
	case backends.OpTypeAdd:
		return func(x, y float64) float64 { return x + y }, nil
	case backends.OpTypeSub:
		return func(x, y float64) float64 { return x - y }, nil
	case backends.OpTypeMul:
		return func(x, y float64) float64 { return x * y }, nil
	case backends.OpTypeDiv:
		return func(x, y float64) float64 { return x / y }, nil
	case backends.OpTypeFloorDiv:
		return func(x, y float64) float64 { return math.Floor(x / y) }, nil
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "binary operation %s", opType)
}

// floorDivInt divides rounding toward negative infinity (Go's integer division
// truncates toward zero).
func floorDivInt[T constraints.Integer](x, y T) T {
	q := x / y
	if x%y != 0 && (x < 0) != (y < 0) {
		q--
	}
	return q
}

func execBinary[T any](fn func(x, y T) T) func(a, b, out any) {
	return func(a, b, out any) {
		aFlat, bFlat, outFlat := a.([]T), b.([]T), out.([]T)
		switch {
		case len(aFlat) == 1:
			x := aFlat[0]
			for ii, y := range bFlat {
				outFlat[ii] = fn(x, y)
			}
		case len(bFlat) == 1:
			y := bFlat[0]
			for ii, x := range aFlat {
				outFlat[ii] = fn(x, y)
			}
		default:
			for ii, x := range aFlat {
				outFlat[ii] = fn(x, bFlat[ii])
			}
		}
	}
}

// funcifyComparison serves the five comparison operations through their capability
// parent.
func funcifyComparison(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	opType := node.Type()
	apply, err := cmpFlatKernel(opType, node.Inputs()[0].DType())
	if err != nil {
		return nil, err
	}
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		bufs, err := kernelInputs(b, inputs)
		if err != nil {
			return nil, err
		}
		lhs, rhs := bufs[0], bufs[1]
		outShape, err := broadcastBuffers(opType, lhs, rhs)
		if err != nil {
			return nil, err
		}
		outShape = outShape.Clone()
		outShape.DType = dtypes.Bool
		out := b.pools.get(outShape, lhs.deviceNum)
		apply(lhs.flat, rhs.flat, out.flat)
		return []backends.Buffer{out}, nil
	}, nil
}

func cmpFlatKernel(opType backends.OpType, dtype dtypes.DType) (func(a, b, out any), error) {
	switch dtype {
	case dtypes.Int8:
		return cmpBinary[int8](opType)
	case dtypes.Int16:
		return cmpBinary[int16](opType)
	case dtypes.Int32:
		return cmpBinary[int32](opType)
	case dtypes.Int64:
		return cmpBinary[int64](opType)
	case dtypes.Uint8:
		return cmpBinary[uint8](opType)
	case dtypes.Uint16:
		return cmpBinary[uint16](opType)
	case dtypes.Uint32:
		return cmpBinary[uint32](opType)
	case dtypes.Uint64:
		return cmpBinary[uint64](opType)
	case dtypes.Float32:
		return cmpBinary[float32](opType)
	case dtypes.Float64:
		return cmpBinary[float64](opType)
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "operation %s for dtype %s", opType, dtype)
}

func cmpBinary[T constraints.Ordered](opType backends.OpType) (func(a, b, out any), error) {
	var fn func(x, y T) bool
	switch opType {
	case backends.OpTypeGreaterThan:
		fn = func(x, y T) bool { return x > y }
	case backends.OpTypeGreaterOrEqual:
		fn = func(x, y T) bool { return x >= y }
	case backends.OpTypeLessThan:
		fn = func(x, y T) bool { return x < y }
	case backends.OpTypeLessOrEqual:
		fn = func(x, y T) bool { return x <= y }
	case backends.OpTypeEqual:
		fn = func(x, y T) bool { return x == y }
	default:
		return nil, errors.Wrapf(backends.ErrNotImplemented, "comparison operation %s", opType)
	}
	return func(a, b, out any) {
		aFlat, bFlat, outFlat := a.([]T), b.([]T), out.([]bool)
		switch {
		case len(aFlat) == 1:
			x := aFlat[0]
			for ii, y := range bFlat {
				outFlat[ii] = fn(x, y)
			}
		case len(bFlat) == 1:
			y := bFlat[0]
			for ii, x := range aFlat {
				outFlat[ii] = fn(x, y)
			}
		default:
			for ii, x := range aFlat {
				outFlat[ii] = fn(x, bFlat[ii])
			}
		}
	}, nil
}
