// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/symtensor/symtensor/types/shapes"
)

// Value is a typed symbolic value flowing through a computation graph: either a free
// input (no owner) or one of the outputs of a Node.
//
// Values are immutable after creation. Identity matters: the same *Value used as input
// to several nodes is computed once per invocation of a compiled function, while two
// structurally identical values are never merged.
type Value struct {
	name  string
	shape shapes.Shape

	// owner is the node that computes this value, nil for free inputs.
	owner *Node
	// index of this value among the owner's outputs.
	index int
}

// Input creates a free value with the given (possibly partially defined) shape. It can
// be used in expressions and must be listed as an input of any container built from
// those expressions.
func Input(name string, shape shapes.Shape) *Value {
	if !shape.Ok() {
		exceptions.Panicf("graph.Input(%q): invalid shape", name)
	}
	return &Value{name: name, shape: shape}
}

// Scalar creates a free rank-0 value.
func Scalar(name string, dtype dtypes.DType) *Value {
	return Input(name, shapes.Scalar(dtype))
}

// Vector creates a free rank-1 value with an unknown dimension.
func Vector(name string, dtype dtypes.DType) *Value {
	return Input(name, shapes.Make(dtype, shapes.UnknownDim))
}

// Matrix creates a free rank-2 value with unknown dimensions.
func Matrix(name string, dtype dtypes.DType) *Value {
	return Input(name, shapes.Make(dtype, shapes.UnknownDim, shapes.UnknownDim))
}

// Name of the value. Outputs of nodes have an empty name unless named with WithName.
func (v *Value) Name() string { return v.name }

// WithName names the value and returns it, so calls can be cascaded.
func (v *Value) WithName(name string) *Value {
	v.name = name
	return v
}

// Shape of the value. It implements shapes.HasShape.
func (v *Value) Shape() shapes.Shape { return v.shape }

// DType of the value's shape.
func (v *Value) DType() dtypes.DType { return v.shape.DType }

// Rank of the value's shape.
func (v *Value) Rank() int { return v.shape.Rank() }

// Owner returns the node that computes this value, or nil for free inputs.
func (v *Value) Owner() *Node { return v.owner }

// OutputIndex returns the index of this value among its owner's outputs. It is 0 for
// free inputs.
func (v *Value) OutputIndex() int { return v.index }

// IsFree reports whether the value has no owner node, i.e. it is an input (or a
// shared-variable handle) rather than the result of an operation.
func (v *Value) IsFree() bool { return v.owner == nil }

// String implements fmt.Stringer.
func (v *Value) String() string {
	if v == nil {
		return "(nil value)"
	}
	name := v.name
	if name == "" {
		if v.owner != nil {
			name = fmt.Sprintf("%s#%d", v.owner.Type(), v.index)
		} else {
			name = "?"
		}
	}
	return fmt.Sprintf("%s%s", name, v.shape)
}

// Roots returns the free (ownerless) values reachable by traversing node dependencies
// backward from the given outputs, in first-visit order. Constants are not free: they
// are owned by their constant node.
func Roots(outputs ...*Value) []*Value {
	var roots []*Value
	seenValues := make(map[*Value]bool)
	seenNodes := make(map[*Node]bool)
	var visit func(v *Value)
	visit = func(v *Value) {
		if seenValues[v] {
			return
		}
		seenValues[v] = true
		if v.owner == nil {
			roots = append(roots, v)
			return
		}
		if seenNodes[v.owner] {
			return
		}
		seenNodes[v.owner] = true
		for _, input := range v.owner.inputs {
			visit(input)
		}
	}
	for _, output := range outputs {
		visit(output)
	}
	return roots
}
