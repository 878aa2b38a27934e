// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

// Package link compiles computation graphs to a backend and executes them.
//
// It is organized in two layers:
//
//   - Executable is the low-level artifact: Compile lowers each node of a graph
//     exactly once through the backend's Dispatcher, and Executable.Run evaluates the
//     lowered kernels over backend buffers, each kernel at most once per invocation,
//     regardless of how many consumers share a node's outputs.
//
//   - Function is the user-facing callable: it accepts host tensors (or Go values),
//     transparently feeds the current value of the shared Variables its graph
//     depends on, and applies the declared Variable updates after each successful
//     call.
//
// Graph building errors panic (see package graph); everything at compile and run
// time returns errors.
package link

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
)

// step is one lowered node: its kernel plus the value slots it reads and writes.
type step struct {
	node    *graph.Node
	kernel  Kernel
	inputs  []int
	outputs []int
}

// Executable is a graph compiled for one backend. It is immutable after Compile and
// safe for concurrent Run calls, as long as the underlying kernels are (stateful
// test operations typically are not).
type Executable struct {
	backend Backend
	graph   *graph.Graph
	steps   []step

	numValues   int
	outputSlots []int
}

// Compile lowers each node of the graph through the backend's dispatcher, exactly
// once per node, and returns the resulting Executable.
//
// It fails if the backend has no lowering rule for some node (the error wraps
// backends.ErrNotImplemented, naming the operation).
func Compile(g *graph.Graph, backend Backend) (*Executable, error) {
	e := &Executable{
		backend:   backend,
		graph:     g,
		steps:     make([]step, 0, len(g.Nodes())),
		numValues: g.NumValues(),
	}
	dispatcher := backend.Dispatcher()
	for _, node := range g.Nodes() {
		kernel, err := dispatcher.Dispatch(backend, node)
		if err != nil {
			return nil, errors.WithMessagef(err, "compiling graph %q", g.Name())
		}
		s := step{
			node:    node,
			kernel:  kernel,
			inputs:  make([]int, len(node.Inputs())),
			outputs: make([]int, len(node.Outputs())),
		}
		for ii, input := range node.Inputs() {
			s.inputs[ii] = e.slotOf(input)
		}
		for ii, output := range node.Outputs() {
			s.outputs[ii] = e.slotOf(output)
		}
		e.steps = append(e.steps, s)
	}
	e.outputSlots = make([]int, len(g.Outputs()))
	for ii, output := range g.Outputs() {
		e.outputSlots[ii] = e.slotOf(output)
	}
	klog.V(1).Infof("link: compiled graph %q for backend %q: %d nodes, %d values",
		g.Name(), backend.Name(), len(e.steps), e.numValues)
	return e, nil
}

func (e *Executable) slotOf(v *graph.Value) int {
	slot, found := e.graph.ValueIndex(v)
	if !found {
		// Unreachable if the graph was built with graph.New.
		panic(errors.Errorf("link: value %s does not belong to graph %q", v, e.graph.Name()))
	}
	return slot
}

// Backend this Executable was compiled for.
func (e *Executable) Backend() Backend { return e.backend }

// Graph this Executable was compiled from.
func (e *Executable) Graph() *graph.Graph { return e.graph }

// Run evaluates the compiled graph over the given input buffers, which must be
// resident on the Executable's backend and match the graph's inputs in order and
// shape. It returns one buffer per graph output.
//
// Each node's kernel runs at most once per Run invocation: outputs consumed by
// several downstream nodes (or listed several times as graph outputs) reuse the same
// buffer. The first kernel error aborts the invocation; later kernels do not run.
// A kernel panic (e.g. an integer division by zero inside a backend) is recovered
// and returned as an error.
func (e *Executable) Run(inputs []backends.Buffer) ([]backends.Buffer, error) {
	declared := e.graph.Inputs()
	if len(inputs) != len(declared) {
		return nil, errors.Errorf("graph %q takes %d inputs, got %d", e.graph.Name(), len(declared), len(inputs))
	}
	results := make([]backends.Buffer, e.numValues)
	for ii, buffer := range inputs {
		shape, err := e.backend.BufferShape(buffer)
		if err != nil {
			return nil, errors.WithMessagef(err, "graph %q, input #%d (%s)", e.graph.Name(), ii, declared[ii])
		}
		if !declared[ii].Shape().CompatibleWith(shape) {
			return nil, errors.Errorf("graph %q, input #%d (%s): declared shape %s is not compatible with buffer shape %s",
				e.graph.Name(), ii, declared[ii].Name(), declared[ii].Shape(), shape)
		}
		results[ii] = buffer
	}
	for stepIdx := range e.steps {
		s := &e.steps[stepIdx]
		kernelInputs := make([]backends.Buffer, len(s.inputs))
		for ii, slot := range s.inputs {
			kernelInputs[ii] = results[slot]
		}
		var kernelOutputs []backends.Buffer
		var err error
		if panicErr := exceptions.TryCatch[error](func() {
			kernelOutputs, err = s.kernel(kernelInputs)
		}); panicErr != nil {
			err = panicErr
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "graph %q, node #%d (%s)", e.graph.Name(), stepIdx, s.node)
		}
		if len(kernelOutputs) != len(s.outputs) {
			return nil, errors.Errorf("graph %q, node #%d (%s): kernel returned %d outputs, expected %d",
				e.graph.Name(), stepIdx, s.node, len(kernelOutputs), len(s.outputs))
		}
		for ii, slot := range s.outputs {
			results[slot] = kernelOutputs[ii]
		}
	}
	outputs := make([]backends.Buffer, len(e.outputSlots))
	for ii, slot := range e.outputSlots {
		outputs[ii] = results[slot]
	}
	return outputs, nil
}
