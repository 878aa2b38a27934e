// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package gotensor

import (
	"reflect"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/types/shapes"
)

// bufferPools recycles buffers per dtype. A recycled flat slice is reused when its
// capacity fits the requested shape, otherwise it is dropped and a fresh one is
// allocated.
type bufferPools struct {
	mu    sync.Mutex
	pools map[dtypes.DType][]*Buffer
}

// maxPooledPerDType bounds how many finalized buffers are kept around per dtype.
const maxPooledPerDType = 32

func newBufferPools() *bufferPools {
	return &bufferPools{pools: make(map[dtypes.DType][]*Buffer)}
}

// get returns a valid buffer for the shape, on the given device, reusing a pooled
// one when possible. Contents are unspecified.
func (p *bufferPools) get(shape shapes.Shape, deviceNum backends.DeviceNum) *Buffer {
	size := shape.Size()
	p.mu.Lock()
	pool := p.pools[shape.DType]
	var buf *Buffer
	for ii := len(pool) - 1; ii >= 0; ii-- {
		candidate := pool[ii]
		if reflect.ValueOf(candidate.flat).Cap() >= size {
			pool[ii] = pool[len(pool)-1]
			p.pools[shape.DType] = pool[:len(pool)-1]
			buf = candidate
			break
		}
	}
	p.mu.Unlock()
	if buf == nil {
		flat := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size).Interface()
		buf = &Buffer{flat: flat}
	} else {
		buf.flat = reflect.ValueOf(buf.flat).Slice(0, size).Interface()
	}
	buf.shape = shape.Clone()
	buf.deviceNum = deviceNum
	buf.valid = true
	return buf
}

// put returns a finalized buffer to the pool.
func (p *bufferPools) put(buf *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool := p.pools[buf.shape.DType]
	if len(pool) >= maxPooledPerDType {
		return
	}
	p.pools[buf.shape.DType] = append(pool, buf)
}

// copyAnyFlat copies between two flat slices of the same underlying type and length.
func copyAnyFlat(dst, src any) {
	reflect.Copy(reflect.ValueOf(dst), reflect.ValueOf(src))
}
