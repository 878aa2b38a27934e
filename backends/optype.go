// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"sync"
)

// OpType is the tag identifying what computation a graph node performs.
//
// The enum below covers the standard operations; backends dispatch lowering rules
// keyed by OpType. New operation kinds can be added by extension packages (or tests)
// with RegisterOpType -- nothing precludes a backend from supporting ops not listed
// here.
//
// Each OpType may declare parent capabilities (see Parents): dispatch falls back from
// the exact kind to its parents, in declaration order, so a backend can register a
// single rule for a whole family of operations (e.g. OpTypeElemwise).
type OpType int

const (
	OpTypeInvalid OpType = iota
	OpTypeParameter
	OpTypeConstant
	OpTypeIdentity

	// OpTypeElemwise is the capability parent of all elementwise operations.
	// It is not instantiated directly as a node operation.
	OpTypeElemwise

	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeDiv
	OpTypeFloorDiv
	OpTypeNeg
	OpTypeAbs
	OpTypeExp
	OpTypeLog
	OpTypeLog1p

	// OpTypeComparison is the capability parent of the comparison operations.
	// Its own parent is OpTypeElemwise.
	OpTypeComparison

	OpTypeGreaterThan
	OpTypeGreaterOrEqual
	OpTypeLessThan
	OpTypeLessOrEqual
	OpTypeEqual

	OpTypeDimShuffle
	OpTypeReshape

	OpTypeSoftmax
	OpTypeLogSoftmax
	OpTypeSoftmaxGrad

	OpTypeCheckAndRaise

	// OpTypeLast should always be kept the last of the static enum: it is used as a
	// counter/marker. Dynamically registered op types take values from here up.
	OpTypeLast
)

var opTypeNames = [OpTypeLast]string{
	OpTypeInvalid:        "Invalid",
	OpTypeParameter:      "Parameter",
	OpTypeConstant:       "Constant",
	OpTypeIdentity:       "Identity",
	OpTypeElemwise:       "Elemwise",
	OpTypeAdd:            "Add",
	OpTypeSub:            "Sub",
	OpTypeMul:            "Mul",
	OpTypeDiv:            "Div",
	OpTypeFloorDiv:       "FloorDiv",
	OpTypeNeg:            "Neg",
	OpTypeAbs:            "Abs",
	OpTypeExp:            "Exp",
	OpTypeLog:            "Log",
	OpTypeLog1p:          "Log1p",
	OpTypeComparison:     "Comparison",
	OpTypeGreaterThan:    "GreaterThan",
	OpTypeGreaterOrEqual: "GreaterOrEqual",
	OpTypeLessThan:       "LessThan",
	OpTypeLessOrEqual:    "LessOrEqual",
	OpTypeEqual:          "Equal",
	OpTypeDimShuffle:     "DimShuffle",
	OpTypeReshape:        "Reshape",
	OpTypeSoftmax:        "Softmax",
	OpTypeLogSoftmax:     "LogSoftmax",
	OpTypeSoftmaxGrad:    "SoftmaxGrad",
	OpTypeCheckAndRaise:  "CheckAndRaise",
}

var (
	// muOpTypes protects the dynamic op type tables below.
	muOpTypes sync.Mutex

	dynamicOpTypeNames = make(map[OpType]string)
	nextDynamicOpType  = OpTypeLast + 1

	// opTypeParents maps each op kind to its declared parent capabilities, in
	// fallback order.
	opTypeParents = map[OpType][]OpType{
		OpTypeAdd:            {OpTypeElemwise},
		OpTypeSub:            {OpTypeElemwise},
		OpTypeMul:            {OpTypeElemwise},
		OpTypeDiv:            {OpTypeElemwise},
		OpTypeFloorDiv:       {OpTypeElemwise},
		OpTypeNeg:            {OpTypeElemwise},
		OpTypeAbs:            {OpTypeElemwise},
		OpTypeExp:            {OpTypeElemwise},
		OpTypeLog:            {OpTypeElemwise},
		OpTypeLog1p:          {OpTypeElemwise},
		OpTypeComparison:     {OpTypeElemwise},
		OpTypeGreaterThan:    {OpTypeComparison},
		OpTypeGreaterOrEqual: {OpTypeComparison},
		OpTypeLessThan:       {OpTypeComparison},
		OpTypeLessOrEqual:    {OpTypeComparison},
		OpTypeEqual:          {OpTypeComparison},
	}
)

// RegisterOpType creates a new operation kind with the given name and declared parent
// capabilities, and returns its OpType. It is meant to be called at package
// initialization by extensions that add their own operations.
func RegisterOpType(name string, parents ...OpType) OpType {
	muOpTypes.Lock()
	defer muOpTypes.Unlock()
	opType := nextDynamicOpType
	nextDynamicOpType++
	dynamicOpTypeNames[opType] = name
	if len(parents) > 0 {
		opTypeParents[opType] = parents
	}
	return opType
}

// Parents returns the declared parent capabilities of the op kind, in fallback order.
// It returns nil for op kinds without declared parents.
func (t OpType) Parents() []OpType {
	muOpTypes.Lock()
	defer muOpTypes.Unlock()
	return opTypeParents[t]
}

// String implements fmt.Stringer.
func (t OpType) String() string {
	if t >= 0 && t < OpTypeLast {
		return opTypeNames[t]
	}
	muOpTypes.Lock()
	defer muOpTypes.Unlock()
	if name, found := dynamicOpTypeNames[t]; found {
		return name
	}
	return fmt.Sprintf("OpType(%d)", int(t))
}
