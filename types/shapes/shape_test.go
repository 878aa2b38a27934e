// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 6, s.Size())
	assert.True(t, s.Ok())
	assert.True(t, s.IsFullyDefined())
	assert.False(t, s.IsScalar())

	scalar := Scalar(dtypes.Int64)
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, 1, scalar.Size())

	assert.False(t, Invalid().Ok())
	assert.Panics(t, func() { Make(dtypes.Float32, 0) })
	assert.Panics(t, func() { Make(dtypes.Float32, -2) })
}

func TestUnknownDims(t *testing.T) {
	s := Make(dtypes.Float64, UnknownDim, 3)
	assert.True(t, s.Ok())
	assert.False(t, s.IsFullyDefined())
	assert.Panics(t, func() { s.Size() })
	assert.Equal(t, "(Float64)[? 3]", s.String())

	assert.True(t, s.CompatibleWith(Make(dtypes.Float64, 7, 3)))
	assert.False(t, s.CompatibleWith(Make(dtypes.Float64, 7, 4)))
	assert.False(t, s.CompatibleWith(Make(dtypes.Float64, 3)))
	assert.False(t, s.CompatibleWith(Make(dtypes.Float32, 7, 3)))
}

func TestDim(t *testing.T) {
	s := Make(dtypes.Int32, 2, 3, 5)
	assert.Equal(t, 2, s.Dim(0))
	assert.Equal(t, 5, s.Dim(-1))
	assert.Equal(t, 3, s.Dim(-2))
	assert.Panics(t, func() { s.Dim(3) })
	assert.Panics(t, func() { s.Dim(-4) })
}

func TestCloneAndEqual(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	c := s.Clone()
	require.True(t, s.Equal(c))
	c.Dimensions[0] = 7
	assert.False(t, s.Equal(c))
	assert.Equal(t, 2, s.Dimensions[0])
}

func TestMemory(t *testing.T) {
	assert.Equal(t, uintptr(24), Make(dtypes.Float32, 2, 3).Memory())
	assert.Equal(t, uintptr(8), Scalar(dtypes.Float64).Memory())
}
