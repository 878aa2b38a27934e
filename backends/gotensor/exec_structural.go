// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package gotensor

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/shapes"
)

func funcifyDimShuffle(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	op, ok := node.Op().(*graph.DimShuffleOp)
	if !ok {
		return nil, errors.Errorf("DimShuffle node with unexpected operation %T", node.Op())
	}
	order := op.Order
	gather, err := gatherFlatKernel(node.Inputs()[0].DType())
	if err != nil {
		return nil, err
	}
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		bufs, err := kernelInputs(b, inputs)
		if err != nil {
			return nil, err
		}
		x := bufs[0]
		inDims := x.shape.Dimensions
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
					order, axis, x.shape, inDims[axis])
			}
		}

		inStrides := make([]int, len(inDims))
		stride := 1
		for axis := len(inDims) - 1; axis >= 0; axis-- {
			inStrides[axis] = stride
			stride *= inDims[axis]
		}

		out := b.pools.get(shapes.Make(x.shape.DType, outDims...), x.deviceNum)
		indices := make([]int, out.shape.Size())
		outIdx := make([]int, len(outDims))
		for flatIdx := range indices {
			srcIdx := 0
			for axis, idx := range outIdx {
				if order[axis] != graph.NewAxis {
					srcIdx += idx * inStrides[order[axis]]
				}
			}
			indices[flatIdx] = srcIdx
			for axis := len(outIdx) - 1; axis >= 0; axis-- {
				outIdx[axis]++
				if outIdx[axis] < outDims[axis] {
					break
				}
				outIdx[axis] = 0
			}
		}
		gather(x.flat, out.flat, indices)
		return []backends.Buffer{out}, nil
	}, nil
}

func gatherFlatKernel(dtype dtypes.DType) (func(in, out any, indices []int), error) {
	switch dtype {
	case dtypes.Bool:
		return execGather[bool], nil
	case dtypes.Int8:
		return execGather[int8], nil
	case dtypes.Int16:
		return execGather[int16], nil
	case dtypes.Int32:
		return execGather[int32], nil
	case dtypes.Int64:
		return execGather[int64], nil
	case dtypes.Uint8:
		return execGather[uint8], nil
	case dtypes.Uint16:
		return execGather[uint16], nil
	case dtypes.Uint32:
		return execGather[uint32], nil
	case dtypes.Uint64:
		return execGather[uint64], nil
	case dtypes.Float16:
		return execGather[float16.Float16], nil
	case dtypes.BFloat16:
		return execGather[bfloat16.BFloat16], nil
	case dtypes.Float32:
		return execGather[float32], nil
	case dtypes.Float64:
		return execGather[float64], nil
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented, "DimShuffle for dtype %s", dtype)
}

func execGather[T any](in, out any, indices []int) {
	inFlat, outFlat := in.([]T), out.([]T)
	for ii, srcIdx := range indices {
		outFlat[ii] = inFlat[srcIdx]
	}
}

func funcifyReshape(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	outValue := node.Outputs()[0]
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		bufs, err := kernelInputs(b, inputs)
		if err != nil {
			return nil, err
		}
		x := bufs[0]
		outShape := outValue.Shape().Clone()
		knownSize := 1
		unknownAxis := -1
		for axis, dim := range outShape.Dimensions {
			if dim == shapes.UnknownDim {
				unknownAxis = axis
				continue
			}
			knownSize *= dim
		}
		size := x.shape.Size()
		if unknownAxis >= 0 {
			if size%knownSize != 0 {
				return nil, errors.Errorf("Reshape: input %s size %d is not a multiple of %d", x.shape, size, knownSize)
			}
			outShape.Dimensions[unknownAxis] = size / knownSize
		} else if knownSize != size {
			return nil, errors.Errorf("Reshape: input %s has %d elements, new shape %s has %d",
				x.shape, size, outShape, knownSize)
		}
		out := b.pools.get(outShape, x.deviceNum)
		copyAnyFlat(out.flat, x.flat)
		return []backends.Buffer{out}, nil
	}, nil
}
