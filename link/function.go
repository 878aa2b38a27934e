// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package link

import (
	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/types/tensors"
)

// Function is a compiled callable over a computation graph.
//
// Shared Variables the graph depends on don't appear in the explicit inputs: their
// current value is fed automatically on every call. Updates declared with WithUpdate
// are all committed together after a call fully succeeds; if any node fails (e.g. a
// guard raising a *graph.GuardError), no variable changes.
//
// A Function is not safe for concurrent calls when it updates variables or its graph
// contains stateful operations.
type Function struct {
	name      string
	backend   Backend
	deviceNum backends.DeviceNum

	inputs  []*graph.Value
	outputs []*graph.Value
	updates []update
	shared  []*Variable

	exec *Executable
}

type update struct {
	variable *Variable
	expr     *graph.Value
}

// FunctionOption configures NewFunction.
type FunctionOption func(f *Function) error

// WithName sets the function's name, used in error messages and logs.
func WithName(name string) FunctionOption {
	return func(f *Function) error {
		f.name = name
		return nil
	}
}

// WithBackend sets the backend to compile for. It takes precedence over WithMode.
func WithBackend(backend Backend) FunctionOption {
	return func(f *Function) error {
		f.backend = backend
		return nil
	}
}

// WithMode selects the backend by configuration string (see
// backends.NewWithConfig): e.g. "ref" for the reference interpreter, or
// "go:devices=2". An empty string uses the process default (environment variable,
// backends.DefaultConfig, or the reference interpreter).
func WithMode(config string) FunctionOption {
	return func(f *Function) error {
		backend, err := backends.NewWithConfig(config)
		if err != nil {
			return err
		}
		f.backend, err = asLinkBackend(backend)
		return err
	}
}

// WithUpdate declares that after every successful call the variable takes the value
// of expr. The same variable may only be updated once per function. Updates may be
// declared for variables the outputs don't otherwise depend on.
func WithUpdate(variable *Variable, expr *graph.Value) FunctionOption {
	return func(f *Function) error {
		for _, u := range f.updates {
			if u.variable == variable {
				return errors.Errorf("variable %q has more than one update", variable.Name())
			}
		}
		if !variable.Handle().Shape().CompatibleWith(expr.Shape()) && !expr.Shape().CompatibleWith(variable.Handle().Shape()) {
			return errors.Errorf("update of variable %q (shape %s) has incompatible shape %s",
				variable.Name(), variable.Handle().Shape(), expr.Shape())
		}
		f.updates = append(f.updates, update{variable: variable, expr: expr})
		return nil
	}
}

// WithDevice sets the device explicit inputs are placed on. Variables keep their own
// device (see OnDevice). It defaults to device 0.
func WithDevice(deviceNum backends.DeviceNum) FunctionOption {
	return func(f *Function) error {
		f.deviceNum = deviceNum
		return nil
	}
}

func asLinkBackend(b backends.Backend) (Backend, error) {
	linkBackend, ok := b.(Backend)
	if !ok {
		return nil, errors.Errorf("backend %q does not provide a lowering dispatcher (link.Backend)", b.Name())
	}
	return linkBackend, nil
}

// NewFunction compiles a callable from the explicit inputs to the outputs.
//
// Free values reachable from the outputs (or from update expressions) that are not
// listed in inputs must be handles of Variables; they become implicit inputs fed
// automatically. Any other unaccounted free value is an error.
func NewFunction(inputs, outputs []*graph.Value, opts ...FunctionOption) (*Function, error) {
	f := &Function{
		name:    "function",
		inputs:  append([]*graph.Value(nil), inputs...),
		outputs: append([]*graph.Value(nil), outputs...),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	if f.backend == nil {
		backend, err := backends.New()
		if err != nil {
			return nil, err
		}
		if f.backend, err = asLinkBackend(backend); err != nil {
			return nil, err
		}
	}

	// The compiled graph evaluates the user outputs plus the update expressions, in
	// one pass, so anything they share is computed once.
	graphOutputs := append([]*graph.Value(nil), f.outputs...)
	for _, u := range f.updates {
		graphOutputs = append(graphOutputs, u.expr)
	}

	// Discover the shared variables: free values not declared as inputs.
	declared := make(map[*graph.Value]bool, len(f.inputs))
	for _, input := range f.inputs {
		declared[input] = true
	}
	allInputs := append([]*graph.Value(nil), f.inputs...)
	for _, root := range graph.Roots(graphOutputs...) {
		if declared[root] {
			continue
		}
		variable, found := VariableOf(root)
		if !found {
			return nil, errors.Errorf("function %q: outputs depend on free value %s that is neither an input nor a variable",
				f.name, root)
		}
		f.shared = append(f.shared, variable)
		allInputs = append(allInputs, root)
	}

	g := graph.New(f.name, allInputs, graphOutputs)
	var err error
	f.exec, err = Compile(g, f.backend)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// MustNewFunction returns NewFunction(...) or panics.
func MustNewFunction(inputs, outputs []*graph.Value, opts ...FunctionOption) *Function {
	f, err := NewFunction(inputs, outputs, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Backend the function was compiled for.
func (f *Function) Backend() Backend { return f.backend }

// Graph returns the compiled graph, including the update expressions as trailing
// outputs and the shared variable handles as trailing inputs.
func (f *Function) Graph() *graph.Graph { return f.exec.Graph() }

// Call evaluates the function. It takes one argument per explicit input, each either
// a *tensors.Tensor or any Go value convertible with tensors.FromValue, and returns
// one host tensor per declared output.
//
// On success the declared variable updates are committed, all together. On error --
// including a guard failure, reported as an error wrapping *graph.GuardError -- no
// variable changes.
func (f *Function) Call(args ...any) ([]*tensors.Tensor, error) {
	if len(args) != len(f.inputs) {
		return nil, errors.Errorf("function %q takes %d arguments, got %d", f.name, len(f.inputs), len(args))
	}

	buffers := make([]backends.Buffer, 0, len(f.inputs)+len(f.shared))
	var owned []backends.Buffer // argument buffers, finalized when the call ends
	defer func() {
		for _, buffer := range owned {
			_ = f.backend.BufferFinalize(buffer)
		}
	}()
	for ii, arg := range args {
		t, ok := arg.(*tensors.Tensor)
		if !ok {
			t = tensors.FromValue(arg)
		}
		if !f.inputs[ii].Shape().CompatibleWith(t.Shape()) {
			return nil, errors.Errorf("function %q, argument #%d (%s): expected shape %s, got %s",
				f.name, ii, f.inputs[ii].Name(), f.inputs[ii].Shape(), t.Shape())
		}
		buffer, err := backends.TensorToBuffer(f.backend, f.deviceNum, t)
		if err != nil {
			return nil, errors.WithMessagef(err, "function %q, argument #%d (%s)", f.name, ii, f.inputs[ii].Name())
		}
		owned = append(owned, buffer)
		buffers = append(buffers, buffer)
	}
	for _, variable := range f.shared {
		buffer, err := variable.bufferOn(f.backend)
		if err != nil {
			return nil, err
		}
		buffers = append(buffers, buffer)
	}

	results, err := f.exec.Run(buffers)
	if err != nil {
		return nil, err
	}

	// Read the declared outputs out to host tensors before committing updates: an
	// update may take over (and later finalize) a buffer that is also an output.
	outputs := make([]*tensors.Tensor, len(f.outputs))
	for ii := range f.outputs {
		outputs[ii], err = backends.TensorFromBuffer(f.backend, results[ii])
		if err != nil {
			return nil, errors.WithMessagef(err, "function %q, reading output #%d", f.name, ii)
		}
	}

	// Commit all updates as one block. A variable can only adopt a buffer the call
	// doesn't still own elsewhere: when the buffer is an argument (finalized on
	// return), another variable's cached value, or already adopted by a previous
	// update, the variable takes a host copy instead.
	committed := make([]backends.Buffer, 0, len(f.updates))
	for ii, u := range f.updates {
		buffer := results[len(f.outputs)+ii]
		aliased := false
		for _, prev := range committed {
			if prev == buffer {
				aliased = true
				break
			}
		}
		for _, prev := range owned {
			if prev == buffer {
				aliased = true
				break
			}
		}
		for _, variable := range f.shared {
			if variable != u.variable && variable.device == buffer {
				aliased = true
				break
			}
		}
		if aliased {
			t, err := backends.TensorFromBuffer(f.backend, buffer)
			if err != nil {
				return nil, errors.WithMessagef(err, "function %q, updating variable %q", f.name, u.variable.Name())
			}
			if err = u.variable.SetValue(t); err != nil {
				return nil, errors.WithMessagef(err, "function %q", f.name)
			}
			continue
		}
		u.variable.setBuffer(f.backend, buffer)
		committed = append(committed, buffer)
	}
	return outputs, nil
}

// Call1 evaluates the function and returns its single output. It panics if the
// function has a different number of outputs.
func (f *Function) Call1(args ...any) (*tensors.Tensor, error) {
	outputs, err := f.Call(args...)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		panic(errors.Errorf("function %q has %d outputs, Call1 requires exactly 1", f.name, len(outputs)))
	}
	return outputs[0], nil
}
