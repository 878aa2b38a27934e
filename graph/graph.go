// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

// Package graph defines the symbolic computation graph: typed values, operation nodes
// and the Graph container that groups them for compilation.
//
// Expressions are built by applying operations to values:
//
//	x := graph.Vector("x", dtypes.Float32)
//	y := graph.Vector("y", dtypes.Float32)
//	out := graph.Mul(x, y)
//	g := graph.New("mul", []*graph.Value{x, y}, []*graph.Value{out})
//
// No computation happens at graph building time; the container is handed to the
// linker (package github.com/symtensor/symtensor/link) which lowers it to a backend
// and returns a callable.
//
// Graph building errors (invalid shapes, missing inputs) panic with a stack trace,
// following the style of package github.com/gomlx/exceptions; runtime errors of
// compiled functions are returned as regular Go errors by the linker.
package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
)

// Graph is a container for a computation: an explicit set of designated input and
// output values, plus the interior nodes reachable by traversing dependencies
// backward from the outputs.
//
// Graphs are immutable once created, and acyclic by construction. Nodes are kept in a
// topological order: every node appears after the nodes computing its inputs.
type Graph struct {
	name    string
	inputs  []*Value
	outputs []*Value

	// nodes in topological order (dependencies before dependents).
	nodes []*Node

	// valueIndex assigns each value in the container a dense slot, keyed by value
	// identity. Inputs take the first slots, in declared order.
	valueIndex map[*Value]int
}

// New builds a Graph container from the designated inputs and outputs. Every free
// value reachable backward from an output must be listed in inputs, otherwise New
// panics naming the missing value.
//
// Inputs that no output depends on are allowed: they keep their position in the
// compiled function's call convention.
func New(name string, inputs, outputs []*Value) *Graph {
	g := &Graph{
		name:       name,
		inputs:     append([]*Value(nil), inputs...),
		outputs:    append([]*Value(nil), outputs...),
		valueIndex: make(map[*Value]int),
	}
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("graph.New(%q): input #%d is nil", name, ii)
		}
		if !input.IsFree() {
			exceptions.Panicf("graph.New(%q): input #%d (%s) is the output of a node, only free values can be inputs",
				name, ii, input)
		}
		if _, found := g.valueIndex[input]; found {
			exceptions.Panicf("graph.New(%q): input #%d (%s) is repeated", name, ii, input)
		}
		g.valueIndex[input] = ii
	}

	// Collect interior nodes in topological order, backward from the outputs.
	seenNodes := make(map[*Node]bool)
	var visit func(v *Value)
	visit = func(v *Value) {
		if _, found := g.valueIndex[v]; found {
			return
		}
		if v.owner == nil {
			exceptions.Panicf("graph.New(%q): output depends on free value %s that is not listed as an input",
				name, v)
		}
		if seenNodes[v.owner] {
			return
		}
		seenNodes[v.owner] = true
		for _, input := range v.owner.inputs {
			visit(input)
		}
		g.nodes = append(g.nodes, v.owner)
		for _, output := range v.owner.outputs {
			g.valueIndex[output] = len(g.valueIndex)
		}
	}
	for ii, output := range outputs {
		if output == nil {
			exceptions.Panicf("graph.New(%q): output #%d is nil", name, ii)
		}
		visit(output)
	}
	return g
}

// Name of the computation this Graph defines, set during its construction.
func (g *Graph) Name() string { return g.name }

// Inputs returns the designated input values, in declared order.
func (g *Graph) Inputs() []*Value { return g.inputs }

// Outputs returns the designated output values, in declared order.
func (g *Graph) Outputs() []*Value { return g.outputs }

// Nodes returns the interior nodes in topological order. The order is fixed at
// construction and does not change between invocations of compiled functions.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NumValues returns the number of distinct values in the container: inputs plus all
// node outputs.
func (g *Graph) NumValues() int { return len(g.valueIndex) }

// ValueIndex returns the dense slot assigned to the value within this container, and
// whether the value belongs to it.
func (g *Graph) ValueIndex(v *Value) (int, bool) {
	idx, found := g.valueIndex[v]
	return idx, found
}

// String converts the Graph to a multi-line string, one node per line.
func (g *Graph) String() string {
	parts := []string{fmt.Sprintf("Graph %q: %d inputs, %d nodes, %d outputs",
		g.name, len(g.inputs), len(g.nodes), len(g.outputs))}
	for ii, node := range g.nodes {
		parts = append(parts, fmt.Sprintf("#%d\t%s", ii, node))
	}
	return strings.Join(parts, "\n")
}
