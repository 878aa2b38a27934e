// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"reflect"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/types/shapes"
	"github.com/symtensor/symtensor/types/tensors"
)

// Buffer represents actual data (a tensor) stored in the engine that executes the
// graph. It is always associated with a DeviceNum, even if there is only one device.
//
// It is opaque from the symtensor perspective: backend methods take this value as
// input and interpret it.
type Buffer any

// DataInterface is the Backend's sub-interface that defines the API to transfer data
// to/from the backend's buffers.
type DataInterface interface {
	// BufferFinalize allows the client to inform the backend that the buffer is no
	// longer needed, and associated resources can be freed immediately.
	//
	// A finalized buffer should never be used again.
	BufferFinalize(buffer Buffer) error

	// BufferShape returns the shape of the buffer.
	BufferShape(buffer Buffer) (shapes.Shape, error)

	// BufferDeviceNum returns the device holding the buffer.
	BufferDeviceNum(buffer Buffer) (DeviceNum, error)

	// BufferToFlatData transfers the flat values of buffer to the Go flat slice, which
	// must have the exact number of elements required by the buffer's shape.
	BufferToFlatData(buffer Buffer, flat any) error

	// BufferFromFlatData transfers data from a Go flat slice (of the type
	// corresponding to the shape's DType) to the device, and returns the
	// corresponding Buffer.
	BufferFromFlatData(deviceNum DeviceNum, flat any, shape shapes.Shape) (Buffer, error)
}

// TensorToBuffer transfers a host tensor to the given device of a backend.
func TensorToBuffer(backend DataInterface, deviceNum DeviceNum, t *tensors.Tensor) (Buffer, error) {
	return backend.BufferFromFlatData(deviceNum, t.Flat(), t.Shape())
}

// TensorFromBuffer transfers a backend buffer back to a host tensor. This is the
// normalization point where device-resident data becomes host-visible.
func TensorFromBuffer(backend DataInterface, buffer Buffer) (*tensors.Tensor, error) {
	shape, err := backend.BufferShape(buffer)
	if err != nil {
		return nil, err
	}
	t := tensors.FromShape(shape)
	if err = backend.BufferToFlatData(buffer, t.Flat()); err != nil {
		return nil, err
	}
	return t, nil
}

// CheckFlat verifies that flat is a slice of a supported dtype, returning the dtype
// and length. It returns an error otherwise.
func CheckFlat(flat any) (dtype dtypes.DType, length int, err error) {
	flatType := reflect.TypeOf(flat)
	if flatType == nil || flatType.Kind() != reflect.Slice {
		return dtype, 0, errors.Errorf("flat data should be a slice, got %T", flat)
	}
	dtype = dtypes.FromGoType(flatType.Elem())
	if dtype == dtypes.InvalidDType {
		return dtype, 0, errors.Errorf("flat is a slice of %s, not a supported data type", flatType.Elem())
	}
	return dtype, reflect.ValueOf(flat).Len(), nil
}
