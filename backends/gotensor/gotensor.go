// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

// Package gotensor implements the "go" backend: a pure Go engine with typed kernels
// specialized by generics, recycled buffers and any number of virtual devices.
//
// Devices are virtual: placement is tracked per buffer and reported back, but all
// buffers live in host memory and transfers are free. Configure the device count
// with "go:devices=N" (see backends.NewWithConfig).
//
// Not every operation is implemented for every dtype (e.g. transcendentals only for
// float dtypes); compiling a graph using an unsupported combination fails with an
// error wrapping backends.ErrNotImplemented.
package gotensor

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/shapes"
)

// BackendName to use in backend configurations (see backends.NewWithConfig).
const BackendName = "go"

// DefaultNumDevices used when the configuration doesn't say otherwise.
const DefaultNumDevices = 1

func init() {
	backends.Register(BackendName, New)
}

// Backend is the pure Go engine. Create it with New, or through the backends
// registry.
type Backend struct {
	numDevices backends.DeviceNum
	pools      *bufferPools
}

// Asserts the interfaces are implemented.
var (
	_ backends.Backend = (*Backend)(nil)
	_ link.Backend     = (*Backend)(nil)
)

// New creates a "go" backend from a configuration string: a comma-separated list of
// key=value options. The only option is "devices=N", the number of virtual devices.
func New(config string) (backends.Backend, error) {
	b := &Backend{numDevices: DefaultNumDevices, pools: newBufferPools()}
	if config == "" {
		return b, nil
	}
	for _, option := range strings.Split(config, ",") {
		key, value, _ := strings.Cut(option, "=")
		switch key {
		case "devices":
			numDevices, err := strconv.Atoi(value)
			if err != nil || numDevices < 1 {
				return nil, errors.Errorf("backend %q: invalid option %q, want devices=<positive int>",
					BackendName, option)
			}
			b.numDevices = backends.DeviceNum(numDevices)
		default:
			return nil, errors.Errorf("backend %q: unknown configuration option %q", BackendName, option)
		}
	}
	return b, nil
}

// Name implements backends.Backend.
func (b *Backend) Name() string { return BackendName }

// Description implements backends.Backend.
func (b *Backend) Description() string {
	return "Pure Go engine with typed kernels and virtual devices"
}

// NumDevices implements backends.Backend.
func (b *Backend) NumDevices() backends.DeviceNum { return b.numDevices }

// Dispatcher implements link.Backend.
func (b *Backend) Dispatcher() *link.Dispatcher { return dispatcher }

// Finalize implements backends.Backend.
func (b *Backend) Finalize() {
	b.pools = newBufferPools()
}

// Buffer is the "go" backend's buffer: a typed flat slice plus its shape and virtual
// device. Buffers are recycled through the backend's pools once finalized.
type Buffer struct {
	shape     shapes.Shape
	flat      any
	deviceNum backends.DeviceNum

	// valid is cleared by BufferFinalize; using an invalid buffer is an error.
	valid bool
}

func (b *Backend) buffer(buffer backends.Buffer) (*Buffer, error) {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return nil, errors.Errorf("buffer of type %T is not a %q backend buffer", buffer, BackendName)
	}
	if !buf.valid {
		return nil, errors.Errorf("backend %q: buffer (%s) already finalized", BackendName, buf.shape)
	}
	return buf, nil
}

// BufferFinalize implements backends.DataInterface: the buffer is returned to the
// backend's pools for reuse.
func (b *Backend) BufferFinalize(buffer backends.Buffer) error {
	buf, err := b.buffer(buffer)
	if err != nil {
		return err
	}
	buf.valid = false
	b.pools.put(buf)
	return nil
}

// BufferShape implements backends.DataInterface.
func (b *Backend) BufferShape(buffer backends.Buffer) (shapes.Shape, error) {
	buf, err := b.buffer(buffer)
	if err != nil {
		return shapes.Invalid(), err
	}
	return buf.shape, nil
}

// BufferDeviceNum implements backends.DataInterface.
func (b *Backend) BufferDeviceNum(buffer backends.Buffer) (backends.DeviceNum, error) {
	buf, err := b.buffer(buffer)
	if err != nil {
		return 0, err
	}
	return buf.deviceNum, nil
}

// BufferToFlatData implements backends.DataInterface.
func (b *Backend) BufferToFlatData(buffer backends.Buffer, flat any) error {
	buf, err := b.buffer(buffer)
	if err != nil {
		return err
	}
	dtype, length, err := backends.CheckFlat(flat)
	if err != nil {
		return err
	}
	if dtype != buf.shape.DType || length != buf.shape.Size() {
		return errors.Errorf("flat data ([%d]%s) doesn't match buffer shape %s", length, dtype, buf.shape)
	}
	copyAnyFlat(flat, buf.flat)
	return nil
}

// BufferFromFlatData implements backends.DataInterface.
func (b *Backend) BufferFromFlatData(deviceNum backends.DeviceNum, flat any, shape shapes.Shape) (backends.Buffer, error) {
	if deviceNum < 0 || deviceNum >= b.numDevices {
		return nil, errors.Errorf("backend %q has %d devices, got deviceNum=%d", BackendName, b.numDevices, deviceNum)
	}
	dtype, length, err := backends.CheckFlat(flat)
	if err != nil {
		return nil, err
	}
	if dtype != shape.DType || length != shape.Size() {
		return nil, errors.Errorf("flat data ([%d]%s) doesn't match shape %s", length, dtype, shape)
	}
	buf := b.pools.get(shape, deviceNum)
	copyAnyFlat(buf.flat, flat)
	return buf, nil
}
