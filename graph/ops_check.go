// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/types/shapes"
)

// GuardKind classifies the failure reported by a guard node.
type GuardKind int

const (
	// GuardAssertion indicates a failed user assertion.
	GuardAssertion GuardKind = iota

	// GuardInvalidValue indicates a value outside the operation's valid domain
	// (e.g. the input of a log that must be positive).
	GuardInvalidValue
)

// String implements fmt.Stringer.
func (k GuardKind) String() string {
	switch k {
	case GuardAssertion:
		return "AssertionError"
	case GuardInvalidValue:
		return "InvalidValueError"
	}
	return fmt.Sprintf("GuardKind(%d)", int(k))
}

// GuardError is the error returned by a function call when a guard node fails at
// runtime.
type GuardError struct {
	Kind    GuardKind
	Message string
}

// Error implements the error interface.
func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// CheckOp passes its first input through unchanged after verifying that its boolean
// condition inputs all hold.
//
// At runtime the conditions are evaluated in declared order; the first one holding
// any false element aborts the call with a *GuardError carrying Kind and Message,
// without evaluating the remaining conditions.
type CheckOp struct {
	Kind    GuardKind
	Message string
}

// Type implements Op.
func (op *CheckOp) Type() backends.OpType { return backends.OpTypeCheckAndRaise }

// InferShapes implements Op.
func (op *CheckOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) < 2 {
		return nil, errors.Errorf("CheckAndRaise takes a value and at least 1 condition, got %d inputs", len(inputs))
	}
	for ii, cond := range inputs[1:] {
		if cond.DType != dtypes.Bool {
			return nil, errors.Errorf("CheckAndRaise: condition #%d must be boolean, got %s", ii, cond)
		}
	}
	return []shapes.Shape{inputs[0].Clone()}, nil
}

// Check returns x unchanged, guarded by the given boolean conditions: at runtime, if
// any condition contains a false element the call fails with a *GuardError of the
// given kind and message. Conditions are checked in order, stopping at the first
// failure.
func Check(x *Value, kind GuardKind, message string, conditions ...*Value) *Value {
	inputs := make([]*Value, 0, len(conditions)+1)
	inputs = append(inputs, x)
	inputs = append(inputs, conditions...)
	return applyOne(&CheckOp{Kind: kind, Message: message}, inputs...)
}
