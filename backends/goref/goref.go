// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

// Package goref implements the reference backend: a plain Go interpreter that
// evaluates every operation element by element over host tensors, favoring
// simplicity over speed. It is the semantic baseline other backends are compared
// against in tests, and the default backend when none is configured.
//
// Buffers are host tensors (*tensors.Tensor), treated as immutable once produced;
// there is a single device.
package goref

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/shapes"
	"github.com/symtensor/symtensor/types/tensors"
)

// BackendName to use in backend configurations (see backends.NewWithConfig).
const BackendName = backends.ReferenceBackendName

func init() {
	backends.Register(BackendName, New)
}

// Backend is the reference interpreter. Create it with New, or through the backends
// registry.
type Backend struct {
	dispatcher *link.Dispatcher
}

// Asserts the interfaces are implemented.
var (
	_ backends.Backend = (*Backend)(nil)
	_ link.Backend     = (*Backend)(nil)
)

// New creates a reference interpreter backend. It takes no configuration options:
// config must be empty.
func New(config string) (backends.Backend, error) {
	if config != "" {
		return nil, errors.Errorf("backend %q takes no configuration options, got %q", BackendName, config)
	}
	return &Backend{dispatcher: dispatcher}, nil
}

// Name implements backends.Backend.
func (b *Backend) Name() string { return BackendName }

// Description implements backends.Backend.
func (b *Backend) Description() string {
	return "Reference interpreter over host tensors (slow, for correctness checks)"
}

// NumDevices implements backends.Backend: the reference interpreter has one device.
func (b *Backend) NumDevices() backends.DeviceNum { return 1 }

// Dispatcher implements link.Backend.
func (b *Backend) Dispatcher() *link.Dispatcher { return b.dispatcher }

// Finalize implements backends.Backend. Buffers are garbage collected, there is
// nothing to release.
func (b *Backend) Finalize() {}

func tensorBuffer(buffer backends.Buffer) (*tensors.Tensor, error) {
	t, ok := buffer.(*tensors.Tensor)
	if !ok {
		return nil, errors.Errorf("buffer of type %T is not a %q backend buffer", buffer, BackendName)
	}
	return t, nil
}

// BufferFinalize implements backends.DataInterface: a no-op, buffers are garbage
// collected.
func (b *Backend) BufferFinalize(buffer backends.Buffer) error {
	_, err := tensorBuffer(buffer)
	return err
}

// BufferShape implements backends.DataInterface.
func (b *Backend) BufferShape(buffer backends.Buffer) (shapes.Shape, error) {
	t, err := tensorBuffer(buffer)
	if err != nil {
		return shapes.Invalid(), err
	}
	return t.Shape(), nil
}

// BufferDeviceNum implements backends.DataInterface: always device 0.
func (b *Backend) BufferDeviceNum(buffer backends.Buffer) (backends.DeviceNum, error) {
	if _, err := tensorBuffer(buffer); err != nil {
		return 0, err
	}
	return 0, nil
}

// BufferToFlatData implements backends.DataInterface.
func (b *Backend) BufferToFlatData(buffer backends.Buffer, flat any) error {
	t, err := tensorBuffer(buffer)
	if err != nil {
		return err
	}
	dtype, length, err := backends.CheckFlat(flat)
	if err != nil {
		return err
	}
	if dtype != t.DType() || length != t.Size() {
		return errors.Errorf("flat data ([%d]%s) doesn't match buffer shape %s", length, dtype, t.Shape())
	}
	reflect.Copy(reflect.ValueOf(flat), reflect.ValueOf(t.Flat()))
	return nil
}

// BufferFromFlatData implements backends.DataInterface.
func (b *Backend) BufferFromFlatData(deviceNum backends.DeviceNum, flat any, shape shapes.Shape) (backends.Buffer, error) {
	if deviceNum != 0 {
		return nil, errors.Errorf("backend %q has a single device, got deviceNum=%d", BackendName, deviceNum)
	}
	dtype, length, err := backends.CheckFlat(flat)
	if err != nil {
		return nil, err
	}
	if dtype != shape.DType || length != shape.Size() {
		return nil, errors.Errorf("flat data ([%d]%s) doesn't match shape %s", length, dtype, shape)
	}
	t := tensors.FromShape(shape)
	t.CopyFlatFrom(flat)
	return t, nil
}
