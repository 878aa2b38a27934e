// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/types/shapes"
)

// Op is an operation that can be instantiated as a graph node.
//
// Implementations carry the operation's static parameters (axis, target dimensions,
// message, ...), fixed at graph construction time. An Op instance may be applied to
// several nodes and referenced by several compiled functions; if the operation is
// explicitly stateful (e.g. a call counter used in tests), that state lives on the Op
// instance and is shared by every compiled function referencing it.
type Op interface {
	// Type returns the operation kind, used for backend dispatch.
	Type() backends.OpType

	// InferShapes validates the input shapes and returns the shapes of the
	// operation's outputs. The number of returned shapes defines the node's number
	// of outputs.
	InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error)
}

// Node is an operation instance applied to input values. Nodes are immutable after
// construction and own their output values.
type Node struct {
	op      Op
	inputs  []*Value
	outputs []*Value
}

// Apply instantiates op on the given input values and returns the node's output
// values. It panics (with a stack trace, see package github.com/gomlx/exceptions) if
// the input shapes are not valid for the operation.
//
// Values can only be built from already existing values, so graphs are acyclic by
// construction.
func Apply(op Op, inputs ...*Value) []*Value {
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("graph.Apply(%s): input #%d is nil", op.Type(), ii)
		}
	}
	inputShapes := make([]shapes.Shape, len(inputs))
	for ii, input := range inputs {
		inputShapes[ii] = input.shape
	}
	outputShapes, err := op.InferShapes(inputShapes...)
	if err != nil {
		panic(err)
	}
	n := &Node{op: op, inputs: append([]*Value(nil), inputs...)}
	n.outputs = make([]*Value, len(outputShapes))
	for ii, shape := range outputShapes {
		n.outputs[ii] = &Value{shape: shape, owner: n, index: ii}
	}
	return n.outputs
}

// applyOne is a convenience for single-output operations.
func applyOne(op Op, inputs ...*Value) *Value {
	outputs := Apply(op, inputs...)
	if len(outputs) != 1 {
		exceptions.Panicf("graph: op %s produced %d outputs, expected 1", op.Type(), len(outputs))
	}
	return outputs[0]
}

// Op returns the operation instance of the node.
func (n *Node) Op() Op { return n.op }

// Type returns the operation kind of the node.
func (n *Node) Type() backends.OpType { return n.op.Type() }

// Inputs returns the input values of the node. The returned slice must not be
// modified.
func (n *Node) Inputs() []*Value { return n.inputs }

// Outputs returns the output values of the node. The returned slice must not be
// modified.
func (n *Node) Outputs() []*Value { return n.outputs }

// NumOutputs returns the number of outputs of the node.
func (n *Node) NumOutputs() int { return len(n.outputs) }

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "(nil node)"
	}
	parts := make([]string, len(n.inputs))
	for ii, input := range n.inputs {
		parts[ii] = input.String()
	}
	return fmt.Sprintf("%s(%s)", n.Type(), strings.Join(parts, ", "))
}
