// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package link

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/types/tensors"
)

// Variable is a stateful cell holding a tensor value across function calls.
//
// Its symbolic handle (Handle) can be used when building graphs like any other free
// value; functions whose graphs depend on it feed its current value automatically,
// without it being listed as an explicit input. A Function built with WithUpdate
// writes a new value to it after each successful call.
//
// The value may live on the host or stay resident on a backend device between calls
// (updates don't round-trip through the host). Value is the normalization point: it
// transfers the value back to the host if needed.
//
// A Variable is not safe for concurrent use: the caller must not call a function
// updating it concurrently with reads or with other calls updating it.
//
// Variables are registered by handle so functions can resolve them; the registration
// pins them for the life of the process. Long-running programs creating variables
// dynamically should call Finalize on the ones they are done with.
type Variable struct {
	name      string
	deviceNum backends.DeviceNum
	handle    *graph.Value

	// device, when set, holds the authoritative value (resident on backend); host
	// holds it otherwise.
	host    *tensors.Tensor
	backend Backend
	device  backends.Buffer
}

// VariableOption configures NewVariable.
type VariableOption func(v *Variable)

// OnDevice sets the device the variable's value should be placed on when a function
// uses it. It defaults to device 0.
func OnDevice(deviceNum backends.DeviceNum) VariableOption {
	return func(v *Variable) { v.deviceNum = deviceNum }
}

var (
	muVariables      sync.Mutex
	handleToVariable = make(map[*graph.Value]*Variable)
)

// NewVariable creates a stateful variable with the given name and initial value.
// The value defines the variable's shape and dtype, fixed for its lifetime.
func NewVariable(name string, value *tensors.Tensor, opts ...VariableOption) *Variable {
	v := &Variable{
		name:   name,
		handle: graph.Input(name, value.Shape()),
		host:   value,
	}
	for _, opt := range opts {
		opt(v)
	}
	muVariables.Lock()
	handleToVariable[v.handle] = v
	muVariables.Unlock()
	return v
}

// NewVariableValue creates a variable from any Go value convertible to a tensor (see
// tensors.FromValue).
func NewVariableValue(name string, value any, opts ...VariableOption) *Variable {
	return NewVariable(name, tensors.FromValue(value), opts...)
}

// VariableOf returns the Variable whose symbolic handle is v, if any.
func VariableOf(v *graph.Value) (*Variable, bool) {
	muVariables.Lock()
	defer muVariables.Unlock()
	variable, found := handleToVariable[v]
	return variable, found
}

// Name of the variable.
func (v *Variable) Name() string { return v.name }

// Handle returns the symbolic value standing for the variable in graphs.
func (v *Variable) Handle() *graph.Value { return v.handle }

// DeviceNum returns the device the variable's value is placed on.
func (v *Variable) DeviceNum() backends.DeviceNum { return v.deviceNum }

// Value returns the variable's current value as a host tensor, transferring it from
// the backend device if that is where it currently lives.
//
// The returned tensor is the variable's backing storage until the next update:
// treat it as read-only, use SetValue to change the variable.
func (v *Variable) Value() (*tensors.Tensor, error) {
	if v.device != nil {
		host, err := backends.TensorFromBuffer(v.backend, v.device)
		if err != nil {
			return nil, errors.WithMessagef(err, "reading value of variable %q from backend %q",
				v.name, v.backend.Name())
		}
		_ = v.backend.BufferFinalize(v.device)
		v.host, v.backend, v.device = host, nil, nil
	}
	return v.host, nil
}

// MustValue returns Value() or panics.
func (v *Variable) MustValue() *tensors.Tensor {
	t, err := v.Value()
	if err != nil {
		panic(err)
	}
	return t
}

// SetValue replaces the variable's value. The new value must have the variable's
// shape and dtype.
func (v *Variable) SetValue(value *tensors.Tensor) error {
	if !v.handle.Shape().CompatibleWith(value.Shape()) {
		return errors.Errorf("variable %q has shape %s, cannot set value of shape %s",
			v.name, v.handle.Shape(), value.Shape())
	}
	if v.device != nil {
		_ = v.backend.BufferFinalize(v.device)
	}
	v.host, v.backend, v.device = value, nil, nil
	return nil
}

// bufferOn returns the variable's value as a buffer on the given backend, on the
// variable's device. The buffer stays owned by the variable: callers must not
// finalize it.
func (v *Variable) bufferOn(backend Backend) (backends.Buffer, error) {
	if v.device != nil {
		if v.backend == backend {
			return v.device, nil
		}
		// Resident on another backend: normalize through the host first.
		if _, err := v.Value(); err != nil {
			return nil, err
		}
	}
	if v.host == nil {
		return nil, errors.Errorf("variable %q has been finalized", v.name)
	}
	buffer, err := backends.TensorToBuffer(backend, v.deviceNum, v.host)
	if err != nil {
		return nil, errors.WithMessagef(err, "placing variable %q on backend %q device %d",
			v.name, backend.Name(), v.deviceNum)
	}
	v.backend, v.device = backend, buffer
	return buffer, nil
}

// setBuffer commits an updated value, leaving it resident on the backend. It
// finalizes the previously cached buffer, if different.
func (v *Variable) setBuffer(backend Backend, buffer backends.Buffer) {
	if v.device != nil && v.device != buffer {
		_ = v.backend.BufferFinalize(v.device)
	}
	v.host = nil
	v.backend, v.device = backend, buffer
}

// Finalize releases the variable: its device buffer (if any) is finalized, its
// backing host tensor is dropped and its handle stops resolving to it, so new
// functions can no longer be built over it. The variable must not be used after
// Finalize; functions already compiled over it will fail to feed it.
func (v *Variable) Finalize() {
	if v.device != nil {
		_ = v.backend.BufferFinalize(v.device)
		v.backend, v.device = nil, nil
	}
	v.host = nil
	muVariables.Lock()
	delete(handleToVariable, v.handle)
	muVariables.Unlock()
}

// String implements fmt.Stringer.
func (v *Variable) String() string {
	return fmt.Sprintf("Variable[%q, %s]", v.name, v.handle.Shape())
}
