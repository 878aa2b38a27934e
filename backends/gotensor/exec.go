// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package gotensor

import (
	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/link"
)

// dispatcher holds the lowering rules shared by every instance of the "go" backend.
//
// The arithmetic operations are registered by exact kind; the five comparisons are
// served by one rule on their capability parent.
var dispatcher = link.NewDispatcher()

func init() {
	dispatcher.Register(backends.OpTypeConstant, funcifyConstant)
	dispatcher.Register(backends.OpTypeIdentity, funcifyIdentity)
	for _, opType := range []backends.OpType{
		backends.OpTypeNeg, backends.OpTypeAbs,
		backends.OpTypeExp, backends.OpTypeLog, backends.OpTypeLog1p,
	} {
		dispatcher.Register(opType, funcifyUnary)
	}
	for _, opType := range []backends.OpType{
		backends.OpTypeAdd, backends.OpTypeSub, backends.OpTypeMul,
		backends.OpTypeDiv, backends.OpTypeFloorDiv,
	} {
		dispatcher.Register(opType, funcifyBinary)
	}
	dispatcher.Register(backends.OpTypeComparison, funcifyComparison)
	dispatcher.Register(backends.OpTypeDimShuffle, funcifyDimShuffle)
	dispatcher.Register(backends.OpTypeReshape, funcifyReshape)
	dispatcher.Register(backends.OpTypeSoftmax, funcifySoftmax)
	dispatcher.Register(backends.OpTypeLogSoftmax, funcifySoftmax)
	dispatcher.Register(backends.OpTypeSoftmaxGrad, funcifySoftmaxGrad)
	dispatcher.Register(backends.OpTypeCheckAndRaise, funcifyCheck)
}

func gotensorBackend(backend link.Backend) (*Backend, error) {
	b, ok := backend.(*Backend)
	if !ok {
		return nil, errors.Errorf("backend of type %T is not the %q backend", backend, BackendName)
	}
	return b, nil
}

func kernelInputs(b *Backend, inputs []backends.Buffer) ([]*Buffer, error) {
	bufs := make([]*Buffer, len(inputs))
	for ii, input := range inputs {
		buf, err := b.buffer(input)
		if err != nil {
			return nil, errors.WithMessagef(err, "input #%d", ii)
		}
		bufs[ii] = buf
	}
	return bufs, nil
}

func funcifyConstant(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	op, ok := node.Op().(*graph.ConstOp)
	if !ok {
		return nil, errors.Errorf("Constant node with unexpected operation %T", node.Op())
	}
	value := op.Value
	// A fresh buffer per invocation: downstream may take ownership of outputs (e.g.
	// a variable update adopting the buffer).
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		buffer, err := backends.TensorToBuffer(b, 0, value)
		if err != nil {
			return nil, err
		}
		return []backends.Buffer{buffer}, nil
	}, nil
}

func funcifyIdentity(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		if _, err := kernelInputs(b, inputs); err != nil {
			return nil, err
		}
		return []backends.Buffer{inputs[0]}, nil
	}, nil
}

func funcifyCheck(backend link.Backend, node *graph.Node) (link.Kernel, error) {
	b, err := gotensorBackend(backend)
	if err != nil {
		return nil, err
	}
	op, ok := node.Op().(*graph.CheckOp)
	if !ok {
		return nil, errors.Errorf("CheckAndRaise node with unexpected operation %T", node.Op())
	}
	kind, message := op.Kind, op.Message
	return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
		bufs, err := kernelInputs(b, inputs)
		if err != nil {
			return nil, err
		}
		for _, cond := range bufs[1:] {
			for _, v := range cond.flat.([]bool) {
				if !v {
					return nil, &graph.GuardError{Kind: kind, Message: message}
				}
			}
		}
		return []backends.Buffer{inputs[0]}, nil
	}, nil
}
