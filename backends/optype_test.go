// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpTypeString(t *testing.T) {
	assert.Equal(t, "Add", OpTypeAdd.String())
	assert.Equal(t, "CheckAndRaise", OpTypeCheckAndRaise.String())
	assert.Equal(t, "OpType(-1)", OpType(-1).String())

	// Every static op type must be named.
	for opType := OpTypeInvalid; opType < OpTypeLast; opType++ {
		assert.NotEmpty(t, opTypeNames[opType], "OpType %d has no name", int(opType))
	}
}

func TestOpTypeParents(t *testing.T) {
	assert.Equal(t, []OpType{OpTypeElemwise}, OpTypeAdd.Parents())
	assert.Equal(t, []OpType{OpTypeComparison}, OpTypeGreaterThan.Parents())
	assert.Equal(t, []OpType{OpTypeElemwise}, OpTypeComparison.Parents())
	assert.Empty(t, OpTypeDimShuffle.Parents())
}

func TestRegisterOpType(t *testing.T) {
	custom := RegisterOpType("MyCustomOp", OpTypeElemwise)
	require.GreaterOrEqual(t, int(custom), int(OpTypeLast))
	assert.Equal(t, "MyCustomOp", custom.String())
	assert.Equal(t, []OpType{OpTypeElemwise}, custom.Parents())

	other := RegisterOpType("Standalone")
	assert.NotEqual(t, custom, other)
	assert.Empty(t, other.Parents())
}
