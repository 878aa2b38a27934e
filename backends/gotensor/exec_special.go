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
)

// The softmax family is only defined for float dtypes. Float16/BFloat16 inputs run
// through a float32 scratch copy: the reductions need more precision than the
// 16-bit formats carry.

func funcifySoftmax(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	op, ok := node.Op().(*graph.SoftmaxOp)
	if !ok {
		return nil, errors.Errorf("Softmax node with unexpected operation %T", node.Op())
	}
	axis, log := op.Axis, op.Log
	dtype := node.Inputs()[0].DType()
	if err := checkFloatDType(node.Type(), dtype); err != nil {
		return nil, err
	}
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		bufs, err := kernelInputs(b, inputs)
		if err != nil {
			return nil, err
		}
		x := bufs[0]
		out := b.pools.get(x.shape, x.deviceNum)
		dims := x.shape.Dimensions
		switch dtype {
		case dtypes.Float32:
			execSoftmax(x.flat.([]float32), out.flat.([]float32), dims, axis, log)
		case dtypes.Float64:
			execSoftmax(x.flat.([]float64), out.flat.([]float64), dims, axis, log)
		case dtypes.Float16, dtypes.BFloat16:
			scratch := toFloat32Scratch(x.flat)
			execSoftmax(scratch, scratch, dims, axis, log)
			fromFloat32Scratch(out.flat, scratch)
		}
		return []backends.Buffer{out}, nil
	}, nil
}

func funcifySoftmaxGrad(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	op, ok := node.Op().(*graph.SoftmaxGradOp)
	if !ok {
		return nil, errors.Errorf("SoftmaxGrad node with unexpected operation %T", node.Op())
	}
	axis := op.Axis
	dtype := node.Inputs()[0].DType()
	if err := checkFloatDType(node.Type(), dtype); err != nil {
		return nil, err
	}
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		bufs, err := kernelInputs(b, inputs)
		if err != nil {
			return nil, err
		}
		dy, sm := bufs[0], bufs[1]
		if !dy.shape.Equal(sm.shape) {
			return nil, errors.Errorf("SoftmaxGrad: operand shapes %s and %s don't match", dy.shape, sm.shape)
		}
		out := b.pools.get(dy.shape, dy.deviceNum)
		dims := dy.shape.Dimensions
		switch dtype {
		case dtypes.Float32:
			execSoftmaxGrad(dy.flat.([]float32), sm.flat.([]float32), out.flat.([]float32), dims, axis)
		case dtypes.Float64:
			execSoftmaxGrad(dy.flat.([]float64), sm.flat.([]float64), out.flat.([]float64), dims, axis)
		case dtypes.Float16, dtypes.BFloat16:
			dyScratch := toFloat32Scratch(dy.flat)
			smScratch := toFloat32Scratch(sm.flat)
			execSoftmaxGrad(dyScratch, smScratch, dyScratch, dims, axis)
			fromFloat32Scratch(out.flat, dyScratch)
		}
		return []backends.Buffer{out}, nil
	}, nil
}

func checkFloatDType(opType backends.OpType, dtype dtypes.DType) error {
	switch dtype {
	case dtypes.Float16, dtypes.BFloat16, dtypes.Float32, dtypes.Float64:
		return nil
	}
	return errors.Wrapf(backends.ErrNotImplemented, "operation %s for dtype %s", opType, dtype)
}

func execSoftmax[T constraints.Float](in, out []T, dims []int, axis int, log bool) {
	forEachGroup(dims, axis, len(in), func(offset, stride, count int) {
		maxVal := math.Inf(-1)
		for k := 0; k < count; k++ {
			maxVal = math.Max(maxVal, float64(in[offset+k*stride]))
		}
		sum := 0.0
		for k := 0; k < count; k++ {
			sum += math.Exp(float64(in[offset+k*stride]) - maxVal)
		}
		logSum := math.Log(sum)
		for k := 0; k < count; k++ {
			idx := offset + k*stride
			v := float64(in[idx]) - maxVal - logSum
			if !log {
				v = math.Exp(v)
			}
			out[idx] = T(v)
		}
	})
}

func execSoftmaxGrad[T constraints.Float](dy, sm, out []T, dims []int, axis int) {
	forEachGroup(dims, axis, len(dy), func(offset, stride, count int) {
		sum := 0.0
		for k := 0; k < count; k++ {
			idx := offset + k*stride
			sum += float64(dy[idx]) * float64(sm[idx])
		}
		for k := 0; k < count; k++ {
			idx := offset + k*stride
			out[idx] = T((float64(dy[idx]) - sum) * float64(sm[idx]))
		}
	})
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

func toFloat32Scratch(flat any) []float32 {
	switch typed := flat.(type) {
	case []float16.Float16:
		out := make([]float32, len(typed))
		for ii, v := range typed {
			out[ii] = v.Float32()
		}
		return out
	case []bfloat16.BFloat16:
		out := make([]float32, len(typed))
		for ii, v := range typed {
			out[ii] = v.Float32()
		}
		return out
	}
	panic(errors.Errorf("backend %q: unexpected scratch conversion from %T", BackendName, flat))
}

func fromFloat32Scratch(flat any, scratch []float32) {
	switch typed := flat.(type) {
	case []float16.Float16:
		for ii, v := range scratch {
			typed[ii] = float16.Fromfloat32(v)
		}
	case []bfloat16.BFloat16:
		for ii, v := range scratch {
			typed[ii] = bfloat16.FromFloat32(v)
		}
	default:
		panic(errors.Errorf("backend %q: unexpected scratch conversion to %T", BackendName, flat))
	}
}
