// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements Tensor, the host (Go memory) representation of a
// multi-dimensional array.
//
// Tensors are defined by their shape (a data type and axes dimensions) and their flat
// contents, stored as a Go slice of the dtype's corresponding Go type. They are the
// host-side currency of the library: compiled functions take and return tensors, and
// shared variables expose their cell contents as tensors.
//
// Construction:
//
//   - FromShape(shape): zero-initialized tensor of the given shape.
//   - FromFlatAndDimensions(flat, dims...): from a flat slice of a supported Go type.
//   - FromScalar(value): a scalar tensor.
//   - FromValue(value): from a Go scalar or (nested) slices, inferring the shape.
//
// Access goes through Flat (the raw flat slice), Value (rebuilds nested Go slices) or
// the generic ConstFlatData / MutableFlatData helpers.
package tensors

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/types/shapes"
)

// Tensor is a host-resident multi-dimensional array.
//
// It is mutable through its flat data accessors, but its shape is fixed at
// construction. A Tensor is not safe for concurrent mutation.
type Tensor struct {
	shape shapes.Shape

	// flat is a slice of shape.DType.GoType() with shape.Size() elements.
	flat any
}

// FromShape returns a zero-initialized Tensor with the given shape.
// The shape must be valid and fully defined.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() || !shape.IsFullyDefined() {
		exceptions.Panicf("tensors.FromShape(%s): shape must be valid and fully defined", shape)
	}
	flat := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size()).Interface()
	return &Tensor{shape: shape.Clone(), flat: flat}
}

// FromFlatAndDimensions creates a Tensor from a flat slice of a supported Go type and
// the given dimensions. The flat slice is copied. The product of the dimensions must
// match len(flat).
func FromFlatAndDimensions[T dtypes.Supported](flat []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if shape.Size() != len(flat) {
		exceptions.Panicf("tensors.FromFlatAndDimensions(%s): flat has %d values, shape requires %d",
			shape, len(flat), shape.Size())
	}
	t := FromShape(shape)
	copy(t.flat.([]T), flat)
	return t
}

// FromScalar creates a scalar (rank-0) Tensor with the given value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromFlatAndDimensions([]T{value})
}

// FromValue creates a Tensor from a Go scalar or from (nested) slices, inferring shape
// and dtype. Nested slices must be regular (same length at each level).
func FromValue(value any) *Tensor {
	t, err := fromValue(value)
	if err != nil {
		panic(err)
	}
	return t
}

func fromValue(value any) (*Tensor, error) {
	if t, ok := value.(*Tensor); ok {
		return t, nil
	}
	v := reflect.ValueOf(value)
	dims, baseType, err := valueDimensions(v)
	if err != nil {
		return nil, err
	}
	dtype := dtypes.FromGoType(baseType)
	if dtype == dtypes.InvalidDType {
		return nil, errors.Errorf("tensors.FromValue(%T): element type %s is not a supported dtype", value, baseType)
	}
	t := FromShape(shapes.Make(dtype, dims...))
	flatV := reflect.ValueOf(t.flat)
	idx := 0
	var fill func(v reflect.Value)
	fill = func(v reflect.Value) {
		if v.Kind() != reflect.Slice {
			flatV.Index(idx).Set(v)
			idx++
			return
		}
		for ii := 0; ii < v.Len(); ii++ {
			fill(v.Index(ii))
		}
	}
	fill(v)
	if idx != t.Size() {
		return nil, errors.Errorf("tensors.FromValue(%T): irregular nested slices, got %d elements, shape %s requires %d",
			value, idx, t.shape, t.Size())
	}
	return t, nil
}

// valueDimensions walks nested slices collecting the dimensions and the base
// element type.
func valueDimensions(v reflect.Value) (dims []int, baseType reflect.Type, err error) {
	for v.Kind() == reflect.Slice {
		if v.Len() == 0 {
			return nil, nil, errors.Errorf("tensors: cannot infer shape from empty slice")
		}
		dims = append(dims, v.Len())
		v = v.Index(0)
	}
	return dims, v.Type(), nil
}

// Shape of the Tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the Tensor's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the Tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size is the number of elements stored.
func (t *Tensor) Size() int { return t.shape.Size() }

// IsScalar returns whether the tensor holds a single value.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Flat returns the underlying flat data slice, typed as the dtype's Go type.
// Mutating it mutates the tensor.
func (t *Tensor) Flat() any { return t.flat }

// Clone returns a deep copy of the Tensor.
func (t *Tensor) Clone() *Tensor {
	c := FromShape(t.shape)
	reflect.Copy(reflect.ValueOf(c.flat), reflect.ValueOf(t.flat))
	return c
}

// CopyFlatFrom overwrites the tensor contents with the given flat slice, which must
// have the same underlying type and length.
func (t *Tensor) CopyFlatFrom(flat any) {
	fromV := reflect.ValueOf(flat)
	toV := reflect.ValueOf(t.flat)
	if fromV.Type() != toV.Type() || fromV.Len() != toV.Len() {
		exceptions.Panicf("Tensor.CopyFlatFrom: incompatible flat data %s (len %d) for tensor %s",
			fromV.Type(), fromV.Len(), t.shape)
	}
	reflect.Copy(toV, fromV)
}

// ConstFlatData gives read access to the tensor's flat data as a typed slice.
// T must match the tensor's dtype.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		exceptions.Panicf("tensors.ConstFlatData[%s]: tensor has dtype %s",
			dtypes.FromGenericsType[T](), t.shape.DType)
	}
	accessFn(t.flat.([]T))
}

// MutableFlatData gives mutable access to the tensor's flat data as a typed slice.
// T must match the tensor's dtype.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		exceptions.Panicf("tensors.MutableFlatData[%s]: tensor has dtype %s",
			dtypes.FromGenericsType[T](), t.shape.DType)
	}
	accessFn(t.flat.([]T))
}

// Value returns the tensor contents as a Go value: a scalar for rank-0 tensors, nested
// slices otherwise.
func (t *Tensor) Value() any {
	if t.IsScalar() {
		return reflect.ValueOf(t.flat).Index(0).Interface()
	}
	flatV := reflect.ValueOf(t.flat)
	idx := 0
	var build func(dims []int) reflect.Value
	build = func(dims []int) reflect.Value {
		if len(dims) == 0 {
			v := flatV.Index(idx)
			idx++
			return v
		}
		sliceType := flatV.Type().Elem()
		for range dims[1:] {
			sliceType = reflect.SliceOf(sliceType)
		}
		out := reflect.MakeSlice(reflect.SliceOf(sliceType), dims[0], dims[0])
		for ii := 0; ii < dims[0]; ii++ {
			out.Index(ii).Set(build(dims[1:]))
		}
		return out
	}
	return build(t.shape.Dimensions).Interface()
}

// Equal compares shape and contents.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || !t.shape.Equal(other.shape) {
		return false
	}
	return reflect.DeepEqual(t.flat, other.flat)
}

// String pretty-prints shape and, for small tensors, the contents.
func (t *Tensor) String() string {
	if t == nil {
		return "(nil tensor)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s", t.shape)
	if t.Size() <= maxSizeToPrint {
		fmt.Fprintf(&b, ": %v", t.Value())
	}
	return b.String()
}

const maxSizeToPrint = 16
