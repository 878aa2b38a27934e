// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"math"

	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/types/shapes"
)

// AllAxes can be given as the axis of Softmax, LogSoftmax and SoftmaxGrad: the
// operation is then taken over all elements, as if the input were flattened.
const AllAxes = math.MinInt

// SoftmaxOp computes softmax (or its log) of the input along one axis, or over all
// elements with AllAxes.
type SoftmaxOp struct {
	Axis int
	Log  bool
}

// Type implements Op.
func (op *SoftmaxOp) Type() backends.OpType {
	if op.Log {
		return backends.OpTypeLogSoftmax
	}
	return backends.OpTypeSoftmax
}

// InferShapes implements Op.
func (op *SoftmaxOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("%s takes 1 input, got %d", op.Type(), len(inputs))
	}
	if err := checkSoftmaxAxis(op.Type(), op.Axis, inputs[0]); err != nil {
		return nil, err
	}
	return []shapes.Shape{inputs[0].Clone()}, nil
}

func checkSoftmaxAxis(opType backends.OpType, axis int, input shapes.Shape) error {
	if axis == AllAxes {
		return nil
	}
	adjusted := axis
	if adjusted < 0 {
		adjusted += input.Rank()
	}
	if adjusted < 0 || adjusted >= input.Rank() {
		return errors.Errorf("%s: axis %d out of range for input %s", opType, axis, input)
	}
	return nil
}

// Softmax returns exp(x)/sum(exp(x)) along the given axis (AllAxes for all elements),
// computed in a numerically stable way.
func Softmax(x *Value, axis int) *Value {
	return applyOne(&SoftmaxOp{Axis: axis}, x)
}

// LogSoftmax returns log(Softmax(x)) along the given axis, computed in a numerically
// stable way.
func LogSoftmax(x *Value, axis int) *Value {
	return applyOne(&SoftmaxOp{Axis: axis, Log: true}, x)
}

// SoftmaxGradOp computes the gradient of softmax: given dy (the incoming gradient)
// and sm (the softmax output), it returns (dy - sum(dy*sm, axis)) * sm.
type SoftmaxGradOp struct {
	Axis int
}

// Type implements Op.
func (op *SoftmaxGradOp) Type() backends.OpType { return backends.OpTypeSoftmaxGrad }

// InferShapes implements Op.
func (op *SoftmaxGradOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("SoftmaxGrad takes 2 inputs (dy, sm), got %d", len(inputs))
	}
	out, err := broadcastShapes(op.Type(), inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	if err = checkSoftmaxAxis(op.Type(), op.Axis, out); err != nil {
		return nil, err
	}
	return []shapes.Shape{out}, nil
}

// SoftmaxGrad returns the gradient of softmax along the given axis, from the incoming
// gradient dy and the softmax output sm.
func SoftmaxGrad(dy, sm *Value, axis int) *Value {
	return applyOne(&SoftmaxGradOp{Axis: axis}, dy, sm)
}
