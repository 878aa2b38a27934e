// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package link_test

import (
	"os"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/backends/goref"
	_ "github.com/symtensor/symtensor/backends/gotensor"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/shapes"
	"github.com/symtensor/symtensor/types/tensors"
)

func TestMain(m *testing.M) {
	klog.InitFlags(nil)
	must.M(os.Setenv(backends.ConfigEnvVar, goref.BackendName))
	os.Exit(m.Run())
}

func refBackend(t *testing.T) link.Backend {
	backend, ok := backends.MustNewWithConfig(goref.BackendName).(link.Backend)
	require.True(t, ok)
	return backend
}

func toBuffer(t *testing.T, backend link.Backend, value any) backends.Buffer {
	buffer, err := backends.TensorToBuffer(backend, 0, tensors.FromValue(value))
	require.NoError(t, err)
	return buffer
}

func fromBuffer(t *testing.T, backend link.Backend, buffer backends.Buffer) *tensors.Tensor {
	result, err := backends.TensorFromBuffer(backend, buffer)
	require.NoError(t, err)
	return result
}

func TestCompileAndRun(t *testing.T) {
	backend := refBackend(t)
	x := graph.Input("x", shapes.Make(dtypes.Float64, 3))
	y := graph.Input("y", shapes.Make(dtypes.Float64, 3))
	g := graph.New("mul", []*graph.Value{x, y}, []*graph.Value{graph.Mul(x, y)})

	exec, err := link.Compile(g, backend)
	require.NoError(t, err)
	assert.Equal(t, backend, exec.Backend())

	outputs, err := exec.Run([]backends.Buffer{
		toBuffer(t, backend, []float64{1, 2, 3}),
		toBuffer(t, backend, []float64{4, 5, 6}),
	})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, []float64{4, 10, 18}, fromBuffer(t, backend, outputs[0]).Flat())
}

func TestRunValidation(t *testing.T) {
	backend := refBackend(t)
	x := graph.Input("x", shapes.Make(dtypes.Float64, 3))
	g := graph.New("neg", []*graph.Value{x}, []*graph.Value{graph.Neg(x)})
	exec := must.M1(link.Compile(g, backend))

	// Wrong number of inputs.
	_, err := exec.Run(nil)
	assert.Error(t, err)

	// Incompatible input shape.
	_, err = exec.Run([]backends.Buffer{toBuffer(t, backend, []float64{1, 2})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not compatible")
}

// countingOp is a stateful two-output operation counting how many times its kernel
// ran. The count lives on the op instance: it is shared by every compiled graph
// referencing the node.
type countingOp struct {
	calls int
}

var countingOpType = backends.RegisterOpType("Counting")

func (op *countingOp) Type() backends.OpType { return countingOpType }

func (op *countingOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("Counting takes 1 input, got %d", len(inputs))
	}
	return []shapes.Shape{inputs[0].Clone(), inputs[0].Clone()}, nil
}

func registerCountingRule(backend link.Backend) {
	backend.Dispatcher().Register(countingOpType,
		func(_ link.Backend, node *graph.Node) (link.Kernel, error) {
			op := node.Op().(*countingOp)
			return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
				op.calls++
				return []backends.Buffer{inputs[0], inputs[0]}, nil
			}, nil
		})
}

func TestSingleEvaluationPerRun(t *testing.T) {
	backend := refBackend(t)
	registerCountingRule(backend)

	op := &countingOp{}
	x := graph.Input("x", shapes.Scalar(dtypes.Float64))
	outs := graph.Apply(op, x)
	require.Len(t, outs, 2)

	// Both outputs are consumed, one of them twice, and one is also a graph output:
	// the node must still run exactly once per invocation. A second counting node
	// downstream keeps its own count, also once per invocation.
	sum := graph.Add(graph.Add(outs[0], outs[1]), outs[0])
	downstream := &countingOp{}
	downs := graph.Apply(downstream, sum)
	total := graph.Add(downs[0], downs[1])
	g := graph.New("counting", []*graph.Value{x}, []*graph.Value{total, outs[0]})
	exec := must.M1(link.Compile(g, backend))

	for run := 1; run <= 3; run++ {
		outputs, err := exec.Run([]backends.Buffer{toBuffer(t, backend, float64(2))})
		require.NoError(t, err)
		assert.Equal(t, float64(12), fromBuffer(t, backend, outputs[0]).Value())
		assert.Equal(t, float64(2), fromBuffer(t, backend, outputs[1]).Value())
		assert.Equal(t, run, op.calls, "kernel must run exactly once per invocation")
		assert.Equal(t, run, downstream.calls, "each node instance is counted independently")
	}
}

func TestDispatchCapabilityFallback(t *testing.T) {
	backend := refBackend(t)

	// The reference backend has no rule for the exact comparison kinds: they are
	// served by the capability chain Comparison -> Elemwise.
	x := graph.Input("x", shapes.Make(dtypes.Int32, 3))
	g := graph.New("cmp", []*graph.Value{x},
		[]*graph.Value{graph.GreaterThan(x, graph.ConstAs(x, 1))})
	exec := must.M1(link.Compile(g, backend))
	outputs, err := exec.Run([]backends.Buffer{toBuffer(t, backend, []int32{0, 1, 2})})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, fromBuffer(t, backend, outputs[0]).Flat())
}

// passthroughOp is a one-output operation with a dynamically registered kind, used
// to exercise dispatch misses and transitive fallback.
type passthroughOp struct {
	opType backends.OpType
}

func (op *passthroughOp) Type() backends.OpType { return op.opType }

func (op *passthroughOp) InferShapes(inputs ...shapes.Shape) ([]shapes.Shape, error) {
	return []shapes.Shape{inputs[0].Clone()}, nil
}

func TestDispatchMiss(t *testing.T) {
	backend := refBackend(t)

	// The kind's parent chain reaches Elemwise, whose rule does not recognize it:
	// dispatch must keep falling back and finally report not-implemented.
	opType := backends.RegisterOpType("UnknownToRef", backends.OpTypeComparison)
	x := graph.Input("x", shapes.Scalar(dtypes.Float32))
	out := graph.Apply(&passthroughOp{opType: opType}, x)[0]
	g := graph.New("miss", []*graph.Value{x}, []*graph.Value{out})

	_, err := link.Compile(g, backend)
	require.Error(t, err)
	assert.True(t, errors.Is(err, backends.ErrNotImplemented))
	assert.Contains(t, err.Error(), "UnknownToRef")

	// Registering an exact rule fixes the miss.
	backend.Dispatcher().Register(opType,
		func(_ link.Backend, node *graph.Node) (link.Kernel, error) {
			return func(inputs []backends.Buffer) ([]backends.Buffer, error) {
				return []backends.Buffer{inputs[0]}, nil
			}, nil
		})
	exec := must.M1(link.Compile(g, backend))
	outputs, err := exec.Run([]backends.Buffer{toBuffer(t, backend, float32(7))})
	require.NoError(t, err)
	assert.Equal(t, float32(7), fromBuffer(t, backend, outputs[0]).Value())
}
