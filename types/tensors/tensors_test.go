// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symtensor/symtensor/types/shapes"
)

func TestFromValue(t *testing.T) {
	matrix := FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})
	assert.True(t, matrix.Shape().Equal(shapes.Make(dtypes.Float32, 2, 3)))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, matrix.Flat())
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, matrix.Value())

	scalar := FromValue(int64(7))
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, int64(7), scalar.Value())

	bools := FromValue([]bool{true, false})
	assert.Equal(t, dtypes.Bool, bools.DType())

	assert.Panics(t, func() { FromValue([][]float32{{1, 2}, {3}}) })
	assert.Panics(t, func() { FromValue([]string{"nope"}) })
	assert.Panics(t, func() { FromValue([]float32{}) })
}

func TestFromFlatAndDimensions(t *testing.T) {
	m := FromFlatAndDimensions([]int32{1, 2, 3, 4, 5, 6}, 3, 2)
	assert.True(t, m.Shape().Equal(shapes.Make(dtypes.Int32, 3, 2)))
	assert.Equal(t, [][]int32{{1, 2}, {3, 4}, {5, 6}}, m.Value())
	assert.Panics(t, func() { FromFlatAndDimensions([]int32{1, 2, 3}, 2, 2) })
}

func TestCloneIsIndependent(t *testing.T) {
	a := FromValue([]float64{1, 2, 3})
	b := a.Clone()
	require.True(t, a.Equal(b))
	MutableFlatData(b, func(flat []float64) { flat[0] = 100 })
	assert.False(t, a.Equal(b))
	assert.Equal(t, []float64{1, 2, 3}, a.Flat())
}

func TestFlatAccessors(t *testing.T) {
	a := FromValue([]int8{1, 2, 3})
	ConstFlatData(a, func(flat []int8) {
		assert.Equal(t, []int8{1, 2, 3}, flat)
	})
	assert.Panics(t, func() {
		ConstFlatData(a, func(flat []int16) {})
	})

	a.CopyFlatFrom([]int8{4, 5, 6})
	assert.Equal(t, []int8{4, 5, 6}, a.Flat())
	assert.Panics(t, func() { a.CopyFlatFrom([]int8{1}) })
}

func TestEqual(t *testing.T) {
	a := FromValue([][]int32{{1, 2}, {3, 4}})
	assert.True(t, a.Equal(FromValue([][]int32{{1, 2}, {3, 4}})))
	assert.False(t, a.Equal(FromValue([][]int32{{1, 2}, {3, 5}})))
	assert.False(t, a.Equal(FromValue([]int32{1, 2, 3, 4})))
	assert.False(t, a.Equal(FromValue([][]int64{{1, 2}, {3, 4}})))
}

func TestFloat16Conversions(t *testing.T) {
	values := []float32{1, -2, 0.5, 1024}

	f16 := Float16FromFloat32(values, 2, 2)
	assert.Equal(t, dtypes.Float16, f16.DType())
	assert.Equal(t, []float32{1, -2, 0.5, 1024}, f16.ToFloat32().Flat())

	bf16 := BFloat16FromFloat32(values, 4)
	assert.Equal(t, dtypes.BFloat16, bf16.DType())
	assert.Equal(t, []float32{1, -2, 0.5, 1024}, bf16.ToFloat32().Flat())
}
