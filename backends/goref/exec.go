// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package goref

import (
	"math"
	"reflect"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/shapes"
	"github.com/symtensor/symtensor/types/tensors"
)

// dispatcher holds the lowering rules shared by every instance of the reference
// backend. The elementwise operations are served by a single rule registered for
// their capability parent.
var dispatcher = link.NewDispatcher()

func init() {
	dispatcher.Register(backends.OpTypeConstant, funcifyConstant)
	dispatcher.Register(backends.OpTypeIdentity, funcifyIdentity)
	dispatcher.Register(backends.OpTypeElemwise, funcifyElemwise)
	dispatcher.Register(backends.OpTypeDimShuffle, funcifyDimShuffle)
	dispatcher.Register(backends.OpTypeReshape, funcifyReshape)
	dispatcher.Register(backends.OpTypeSoftmax, funcifySoftmax)
	dispatcher.Register(backends.OpTypeLogSoftmax, funcifySoftmax)
	dispatcher.Register(backends.OpTypeSoftmaxGrad, funcifySoftmaxGrad)
	dispatcher.Register(backends.OpTypeCheckAndRaise, funcifyCheck)
}

// The reference interpreter evaluates everything through float64: floatsOf reads a
// tensor out as float64 values, tensorOfFloats writes them back with the target
// dtype. Slow, but one code path for every dtype.

func floatsOf(t *tensors.Tensor) []float64 {
	out := make([]float64, t.Size())
	switch t.DType() {
	case dtypes.Bool:
		tensors.ConstFlatData(t, func(flat []bool) {
			for ii, v := range flat {
				if v {
					out[ii] = 1
				}
			}
		})
	case dtypes.Int8:
		readFloats[int8](t, out)
	case dtypes.Int16:
		readFloats[int16](t, out)
	case dtypes.Int32:
		readFloats[int32](t, out)
	case dtypes.Int64:
		readFloats[int64](t, out)
	case dtypes.Uint8:
		readFloats[uint8](t, out)
	case dtypes.Uint16:
		readFloats[uint16](t, out)
	case dtypes.Uint32:
		readFloats[uint32](t, out)
	case dtypes.Uint64:
		readFloats[uint64](t, out)
	case dtypes.Float16:
		tensors.ConstFlatData(t, func(flat []float16.Float16) {
			for ii, v := range flat {
				out[ii] = float64(v.Float32())
			}
		})
	case dtypes.BFloat16:
		tensors.ConstFlatData(t, func(flat []bfloat16.BFloat16) {
			for ii, v := range flat {
				out[ii] = float64(v.Float32())
			}
		})
	case dtypes.Float32:
		readFloats[float32](t, out)
	case dtypes.Float64:
		readFloats[float64](t, out)
	default:
		panic(errors.Errorf("backend %q: unsupported dtype %s", BackendName, t.DType()))
	}
	return out
}

// number constrains to the supported dtypes that convert to and from float64 directly.
type number interface {
	constraints.Integer | constraints.Float
	dtypes.Supported
}

func readFloats[T number](t *tensors.Tensor, out []float64) {
	tensors.ConstFlatData(t, func(flat []T) {
		for ii, v := range flat {
			out[ii] = float64(v)
		}
	})
}

func tensorOfFloats(shape shapes.Shape, values []float64) *tensors.Tensor {
	t := tensors.FromShape(shape)
	switch shape.DType {
	case dtypes.Bool:
		tensors.MutableFlatData(t, func(flat []bool) {
			for ii, v := range values {
				flat[ii] = v != 0
			}
		})
	case dtypes.Int8:
		writeFloats[int8](t, values)
	case dtypes.Int16:
		writeFloats[int16](t, values)
	case dtypes.Int32:
		writeFloats[int32](t, values)
	case dtypes.Int64:
		writeFloats[int64](t, values)
	case dtypes.Uint8:
		writeFloats[uint8](t, values)
	case dtypes.Uint16:
		writeFloats[uint16](t, values)
	case dtypes.Uint32:
		writeFloats[uint32](t, values)
	case dtypes.Uint64:
		writeFloats[uint64](t, values)
	case dtypes.Float16:
		tensors.MutableFlatData(t, func(flat []float16.Float16) {
			for ii, v := range values {
				flat[ii] = float16.Fromfloat32(float32(v))
			}
		})
	case dtypes.BFloat16:
		tensors.MutableFlatData(t, func(flat []bfloat16.BFloat16) {
			for ii, v := range values {
				flat[ii] = bfloat16.FromFloat32(float32(v))
			}
		})
	case dtypes.Float32:
		writeFloats[float32](t, values)
	case dtypes.Float64:
		writeFloats[float64](t, values)
	default:
		panic(errors.Errorf("backend %q: unsupported dtype %s", BackendName, shape.DType))
	}
	return t
}

func writeFloats[T number](t *tensors.Tensor, values []float64) {
	tensors.MutableFlatData(t, func(flat []T) {
		for ii, v := range values {
			flat[ii] = T(v)
		}
	})
}

func funcifyConstant(_ link.Backend, node *graph.Node) (link.Kernel, error) {
	op, ok := node.Op().(*graph.ConstOp)
	if !ok {
		return nil, errors.Errorf("Constant node with unexpected operation %T", node.Op())
	}
	// Buffers are immutable in this backend, the constant can be served as is.
	value := op.Value
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		return []backends.Buffer{value}, nil
	}, nil
}

func funcifyIdentity(_ link.Backend, node *graph.Node) (link.Kernel, error) {
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		return []backends.Buffer{inputs[0]}, nil
	}, nil
}

var (
	unaryFns = map[backends.OpType]func(v float64) float64{
		backends.OpTypeNeg:   func(v float64) float64 { return -v },
		backends.OpTypeAbs:   math.Abs,
		backends.OpTypeExp:   math.Exp,
		backends.OpTypeLog:   math.Log,
		backends.OpTypeLog1p: math.Log1p,
	}
	binaryFns = map[backends.OpType]func(a, b float64) float64{
		backends.OpTypeAdd:      func(a, b float64) float64 { return a + b },
		backends.OpTypeSub:      func(a, b float64) float64 { return a - b },
		backends.OpTypeMul:      func(a, b float64) float64 { return a * b },
		backends.OpTypeDiv:      func(a, b float64) float64 { return a / b },
		backends.OpTypeFloorDiv: func(a, b float64) float64 { return math.Floor(a / b) },
	}
	comparisonFns = map[backends.OpType]func(a, b float64) bool{
		backends.OpTypeGreaterThan:    func(a, b float64) bool { return a > b },
		backends.OpTypeGreaterOrEqual: func(a, b float64) bool { return a >= b },
		backends.OpTypeLessThan:       func(a, b float64) bool { return a < b },
		backends.OpTypeLessOrEqual:    func(a, b float64) bool { return a <= b },
		backends.OpTypeEqual:          func(a, b float64) bool { return a == b },
	}
)

// funcifyElemwise serves every elementwise operation through the OpTypeElemwise
// capability.
func funcifyElemwise(_ link.Backend, node *graph.Node) (link.Kernel, error) {
	opType := node.Type()
	if fn, found := unaryFns[opType]; found {
		return unaryKernel(fn), nil
	}
	if fn, found := binaryFns[opType]; found {
		return binaryKernel(opType, fn, node.Outputs()[0].DType()), nil
	}
	if fn, found := comparisonFns[opType]; found {
		boxed := func(a, b float64) float64 {
			if fn(a, b) {
				return 1
			}
			return 0
		}
		return binaryKernel(opType, boxed, dtypes.Bool), nil
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "elementwise operation %s", opType)
}

func unaryKernel(fn func(v float64) float64) link.Kernel {
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		x, err := tensorBuffer(inputs[0])
		if err != nil {
			return nil, err
		}
		values := floatsOf(x)
		for ii, v := range values {
			values[ii] = fn(v)
		}
		return []backends.Buffer{tensorOfFloats(x.Shape(), values)}, nil
	}
}

func binaryKernel(opType backends.OpType, fn func(a, b float64) float64, outDType dtypes.DType) link.Kernel {
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		lhs, err := tensorBuffer(inputs[0])
		if err != nil {
			return nil, err
		}
		rhs, err := tensorBuffer(inputs[1])
		if err != nil {
			return nil, err
		}
		outShape := lhs.Shape()
		switch {
		case lhs.IsScalar():
			outShape = rhs.Shape()
		case rhs.IsScalar():
		case !lhs.Shape().Equal(rhs.Shape()):
			return nil, errors.Errorf("%s: operand shapes %s and %s don't match", opType, lhs.Shape(), rhs.Shape())
		}
		outShape = outShape.Clone()
		outShape.DType = outDType
		a, b := floatsOf(lhs), floatsOf(rhs)
		values := make([]float64, outShape.Size())
		for ii := range values {
			ai, bi := ii, ii
			if lhs.IsScalar() {
				ai = 0
			}
			if rhs.IsScalar() {
				bi = 0
			}
			values[ii] = fn(a[ai], b[bi])
		}
		return []backends.Buffer{tensorOfFloats(outShape, values)}, nil
	}
}

func funcifyDimShuffle(_ link.Backend, node *graph.Node) (link.Kernel, error) {
	op, ok := node.Op().(*graph.DimShuffleOp)
	if !ok {
		return nil, errors.Errorf("DimShuffle node with unexpected operation %T", node.Op())
	}
	order := op.Order
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		x, err := tensorBuffer(inputs[0])
		if err != nil {
			return nil, err
		}
		inDims := x.Shape().Dimensions
		used := make([]bool, len(inDims))
		outDims := make([]int, len(order))
		for ii, axis := range order {
			if axis == graph.NewAxis {
				outDims[ii] = 1
				continue
			}
			used[axis] = true
			outDims[ii] = inDims[axis]
		}
		for axis, wasUsed := range used {
			if !wasUsed && inDims[axis] != 1 {
				return nil, errors.Errorf("DimShuffle(%v): dropped axis %d of input %s has dimension %d, must be 1",
					order, axis, x.Shape(), inDims[axis])
			}
		}

		// Row-major strides of the input.
		inStrides := make([]int, len(inDims))
		stride := 1
		for axis := len(inDims) - 1; axis >= 0; axis-- {
			inStrides[axis] = stride
			stride *= inDims[axis]
		}

		out := tensors.FromShape(shapes.Make(x.DType(), outDims...))
		outFlat, inFlat := reflect.ValueOf(out.Flat()), reflect.ValueOf(x.Flat())
		outIdx := make([]int, len(outDims))
		for flatIdx := 0; flatIdx < out.Size(); flatIdx++ {
			srcIdx := 0
			for axis, idx := range outIdx {
				if order[axis] != graph.NewAxis {
					srcIdx += idx * inStrides[order[axis]]
				}
			}
			outFlat.Index(flatIdx).Set(inFlat.Index(srcIdx))
			for axis := len(outIdx) - 1; axis >= 0; axis-- {
				outIdx[axis]++
				if outIdx[axis] < outDims[axis] {
					break
				}
				outIdx[axis] = 0
			}
		}
		return []backends.Buffer{out}, nil
	}, nil
}

func funcifyReshape(_ link.Backend, node *graph.Node) (link.Kernel, error) {
	outValue := node.Outputs()[0]
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		x, err := tensorBuffer(inputs[0])
		if err != nil {
			return nil, err
		}
		outShape := outValue.Shape().Clone()
		// Resolve the dimension left unknown at graph time from the runtime size.
		knownSize := 1
		unknownAxis := -1
		for axis, dim := range outShape.Dimensions {
			if dim == shapes.UnknownDim {
				unknownAxis = axis
				continue
			}
			knownSize *= dim
		}
		if unknownAxis >= 0 {
			if x.Size()%knownSize != 0 {
				return nil, errors.Errorf("Reshape: input %s size %d is not a multiple of %d",
					x.Shape(), x.Size(), knownSize)
			}
			outShape.Dimensions[unknownAxis] = x.Size() / knownSize
		} else if knownSize != x.Size() {
			return nil, errors.Errorf("Reshape: input %s has %d elements, new shape %s has %d",
				x.Shape(), x.Size(), outShape, knownSize)
		}
		out := tensors.FromShape(outShape)
		out.CopyFlatFrom(x.Flat())
		return []backends.Buffer{out}, nil
	}, nil
}

func funcifySoftmax(_ link.Backend, node *graph.Node) (link.Kernel, error) {
	op, ok := node.Op().(*graph.SoftmaxOp)
	if !ok {
		return nil, errors.Errorf("Softmax node with unexpected operation %T", node.Op())
	}
	axis, log := op.Axis, op.Log
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		x, err := tensorBuffer(inputs[0])
		if err != nil {
			return nil, err
		}
		values := floatsOf(x)
		forEachGroup(x.Shape().Dimensions, axis, len(values), func(offset, stride, count int) {
			maxVal := math.Inf(-1)
			for k := 0; k < count; k++ {
				maxVal = math.Max(maxVal, values[offset+k*stride])
			}
			sum := 0.0
			for k := 0; k < count; k++ {
				sum += math.Exp(values[offset+k*stride] - maxVal)
			}
			logSum := math.Log(sum)
			for k := 0; k < count; k++ {
				idx := offset + k*stride
				if log {
					values[idx] = values[idx] - maxVal - logSum
				} else {
					values[idx] = math.Exp(values[idx] - maxVal - logSum)
				}
			}
		})
		return []backends.Buffer{tensorOfFloats(x.Shape(), values)}, nil
	}, nil
}

func funcifySoftmaxGrad(_ link.Backend, node *graph.Node) (link.Kernel, error) {
	op, ok := node.Op().(*graph.SoftmaxGradOp)
	if !ok {
		return nil, errors.Errorf("SoftmaxGrad node with unexpected operation %T", node.Op())
	}
	axis := op.Axis
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		dy, err := tensorBuffer(inputs[0])
		if err != nil {
			return nil, err
		}
		sm, err := tensorBuffer(inputs[1])
		if err != nil {
			return nil, err
		}
		if !dy.Shape().Equal(sm.Shape()) {
			return nil, errors.Errorf("SoftmaxGrad: operand shapes %s and %s don't match", dy.Shape(), sm.Shape())
		}
		dyVals, smVals := floatsOf(dy), floatsOf(sm)
		forEachGroup(dy.Shape().Dimensions, axis, len(dyVals), func(offset, stride, count int) {
			sum := 0.0
			for k := 0; k < count; k++ {
				idx := offset + k*stride
				sum += dyVals[idx] * smVals[idx]
			}
			for k := 0; k < count; k++ {
				idx := offset + k*stride
				dyVals[idx] = (dyVals[idx] - sum) * smVals[idx]
			}
		})
		return []backends.Buffer{tensorOfFloats(dy.Shape(), dyVals)}, nil
	}, nil
}

// forEachGroup calls fn once per softmax group, giving the flat offset of the
// group's first element, the stride between consecutive elements of the group and
// the group length. With axis == graph.AllAxes there is a single group spanning all
// elements, stride 1.
func forEachGroup(dims []int, axis, size int, fn func(offset, stride, count int)) {
	if axis == graph.AllAxes || len(dims) == 0 {
		fn(0, 1, size)
		return
	}
	if axis < 0 {
		axis += len(dims)
	}
	axisDim := dims[axis]
	inner := 1
	for _, dim := range dims[axis+1:] {
		inner *= dim
	}
	outer := size / (axisDim * inner)
	for o := 0; o < outer; o++ {
		base := o * axisDim * inner
		for i := 0; i < inner; i++ {
			fn(base+i, inner, axisDim)
		}
	}
}

func funcifyCheck(_ link.Backend, node *graph.Node) (link.Kernel, error) {
	op, ok := node.Op().(*graph.CheckOp)
	if !ok {
		return nil, errors.Errorf("CheckAndRaise node with unexpected operation %T", node.Op())
	}
	kind, message := op.Kind, op.Message
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		var guardErr error
		for _, condBuffer := range inputs[1:] {
			cond, err := tensorBuffer(condBuffer)
			if err != nil {
				return nil, err
			}
			holds := true
			tensors.ConstFlatData(cond, func(flat []bool) {
				for _, v := range flat {
					if !v {
						holds = false
						return
					}
				}
			})
			if !holds {
				guardErr = &graph.GuardError{Kind: kind, Message: message}
				break
			}
		}
		if guardErr != nil {
			return nil, guardErr
		}
		return []backends.Buffer{inputs[0]}, nil
	}, nil
}
