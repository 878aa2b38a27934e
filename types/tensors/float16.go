// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"

	"github.com/symtensor/symtensor/types/shapes"
)

// Float16FromFloat32 creates a Float16 tensor from float32 values.
func Float16FromFloat32(values []float32, dimensions ...int) *Tensor {
	flat := make([]float16.Float16, len(values))
	for ii, v := range values {
		flat[ii] = float16.Fromfloat32(v)
	}
	return FromFlatAndDimensions(flat, dimensions...)
}

// BFloat16FromFloat32 creates a BFloat16 tensor from float32 values.
func BFloat16FromFloat32(values []float32, dimensions ...int) *Tensor {
	flat := make([]bfloat16.BFloat16, len(values))
	for ii, v := range values {
		flat[ii] = bfloat16.FromFloat32(v)
	}
	return FromFlatAndDimensions(flat, dimensions...)
}

// ToFloat32 returns a Float32 copy of the tensor. It supports Float16, BFloat16,
// Float32 and Float64 tensors; other dtypes panic.
func (t *Tensor) ToFloat32() *Tensor {
	out := FromShape(shapes.Make(dtypes.Float32, t.shape.Dimensions...))
	outFlat := out.flat.([]float32)
	switch t.DType() {
	case dtypes.Float16:
		for ii, v := range t.flat.([]float16.Float16) {
			outFlat[ii] = v.Float32()
		}
	case dtypes.BFloat16:
		for ii, v := range t.flat.([]bfloat16.BFloat16) {
			outFlat[ii] = v.Float32()
		}
	case dtypes.Float32:
		copy(outFlat, t.flat.([]float32))
	case dtypes.Float64:
		for ii, v := range t.flat.([]float64) {
			outFlat[ii] = float32(v)
		}
	default:
		exceptions.Panicf("Tensor.ToFloat32: unsupported dtype %s", t.DType())
	}
	return out
}
