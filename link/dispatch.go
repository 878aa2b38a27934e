// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package link

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
)

// Kernel is a compiled lowering of one graph node: it consumes the node's input
// buffers and produces its output buffers, all resident on the kernel's backend.
//
// A Kernel is generated once per node at compile time and invoked at most once per
// function call.
type Kernel func(inputs []backends.Buffer) ([]backends.Buffer, error)

// FuncifyFn generates the Kernel for a node. It is called once per node at compile
// time, so it can inspect the node's static parameters (shapes, axes, dtype) and
// return a specialized closure.
//
// A FuncifyFn registered for a parent capability (e.g. backends.OpTypeElemwise) may
// return an error wrapping backends.ErrNotImplemented for the particular node, in
// which case dispatch keeps falling back to the next capability.
type FuncifyFn func(backend Backend, node *graph.Node) (Kernel, error)

// Backend extends backends.Backend with the dispatcher of lowering rules that turns
// graph nodes into kernels.
type Backend interface {
	backends.Backend

	// Dispatcher returns the backend's table of per-operation lowering rules.
	Dispatcher() *Dispatcher
}

// Dispatcher maps operation kinds to lowering rules for one backend.
//
// Lookup falls back along the operation's declared capability parents (see
// backends.OpType.Parents): a backend can register one rule for
// backends.OpTypeElemwise and have it serve every elementwise operation it doesn't
// register more specifically.
type Dispatcher struct {
	mu    sync.RWMutex
	rules map[backends.OpType]FuncifyFn
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{rules: make(map[backends.OpType]FuncifyFn)}
}

// Register sets the lowering rule for the given operation kind, replacing any
// previous one. Backends usually call it during package initialization, but tests
// (and extensions) may register rules for dynamically created op types at any time.
func (d *Dispatcher) Register(opType backends.OpType, fn FuncifyFn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules[opType] = fn
}

func (d *Dispatcher) rule(opType backends.OpType) (FuncifyFn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, found := d.rules[opType]
	return fn, found
}

// Dispatch generates the kernel for the node, trying the node's exact operation kind
// first and then its capability parents, breadth-first in declaration order. Rules
// that return an error wrapping backends.ErrNotImplemented are skipped and the
// search continues; any other error aborts immediately.
//
// If no rule accepts the node, Dispatch returns an error wrapping
// backends.ErrNotImplemented that names the operation and the backend.
func (d *Dispatcher) Dispatch(backend Backend, node *graph.Node) (Kernel, error) {
	visited := make(map[backends.OpType]bool)
	queue := []backends.OpType{node.Type()}
	for len(queue) > 0 {
		opType := queue[0]
		queue = queue[1:]
		if visited[opType] {
			continue
		}
		visited[opType] = true
		if fn, found := d.rule(opType); found {
			kernel, err := fn(backend, node)
			if err == nil {
				return kernel, nil
			}
			if !errors.Is(err, backends.ErrNotImplemented) {
				return nil, errors.WithMessagef(err, "backend %q lowering node %s", backend.Name(), node)
			}
		}
		queue = append(queue, opType.Parents()...)
	}
	return nil, errors.Wrapf(backends.ErrNotImplemented,
		"backend %q has no lowering rule for operation %s (node %s)", backend.Name(), node.Type(), node)
}
