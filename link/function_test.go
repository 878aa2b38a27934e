// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package link_test

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/shapes"
	"github.com/symtensor/symtensor/types/tensors"
)

func TestFunctionBasic(t *testing.T) {
	// Vectors with call-time-resolved lengths.
	x := graph.Vector("x", dtypes.Float64)
	y := graph.Vector("y", dtypes.Float64)

	fn := must.M1(link.NewFunction(
		[]*graph.Value{x, y}, []*graph.Value{graph.Mul(x, y)}))
	out := must.M1(fn.Call1([]float64{1, 2, 3}, []float64{4, 5, 6}))
	assert.Equal(t, []float64{4, 10, 18}, out.Flat())

	// The same function accepts a different length on the next call.
	out = must.M1(fn.Call1([]float64{1, 2}, []float64{3, 4}))
	assert.Equal(t, []float64{3, 8}, out.Flat())

	// Argument count and shapes are validated.
	_, err := fn.Call([]float64{1})
	assert.Error(t, err)
	_, err = fn.Call([]float64{1}, [][]float64{{2}})
	assert.Error(t, err)
}

func TestFunctionMultipleOutputs(t *testing.T) {
	x := graph.Vector("x", dtypes.Int64)
	y := graph.Vector("y", dtypes.Int64)

	fn := must.M1(link.NewFunction(
		[]*graph.Value{x, y},
		[]*graph.Value{graph.FloorDiv(x, y), graph.Add(x, y)}))
	outputs := must.M1(fn.Call([]int64{7, -7, 9}, []int64{2, 2, 3}))
	require.Len(t, outputs, 2)
	assert.Equal(t, []int64{3, -4, 3}, outputs[0].Flat())
	assert.Equal(t, []int64{9, -5, 12}, outputs[1].Flat())
}

func TestIntegerDivisionByZero(t *testing.T) {
	// The reference backend divides through float64 and returns normally; the
	// "go" backend's integer kernels hit a runtime divide-by-zero, which must
	// come back as a regular error from the call instead of escaping as a panic.
	for _, mode := range []string{"ref", "go"} {
		x := graph.Vector("x", dtypes.Int64)
		y := graph.Vector("y", dtypes.Int64)
		fn := must.M1(link.NewFunction(
			[]*graph.Value{x, y},
			[]*graph.Value{graph.Div(x, y), graph.FloorDiv(x, y)},
			link.WithMode(mode)))

		var err error
		assert.NotPanics(t, func() {
			_, err = fn.Call([]int64{6, 7}, []int64{2, 0})
		}, "backend %q", mode)
		if mode == "go" {
			require.Error(t, err, "backend %q", mode)
			assert.Contains(t, err.Error(), "divide by zero")
		} else {
			assert.NoError(t, err, "backend %q", mode)
		}
	}
}

func TestFunctionWithConstants(t *testing.T) {
	// log(1-x), with the constant folded into the graph.
	x := graph.Vector("x", dtypes.Float64)
	fn := must.M1(link.NewFunction(
		[]*graph.Value{x},
		[]*graph.Value{graph.Log(graph.Sub(graph.ConstAs(x, 1), x))}))
	out := must.M1(fn.Call1([]float64{0, 0.5}))
	flat := out.Flat().([]float64)
	assert.InDelta(t, 0, flat[0], 1e-12)
	assert.InDelta(t, math.Log(0.5), flat[1], 1e-12)
}

func TestSharedVariableRoundTrip(t *testing.T) {
	v := link.NewVariableValue("state", []float32{1, 2, 3})
	assert.Equal(t, []float32{1, 2, 3}, v.MustValue().Flat())

	// The variable feeds the function without being an explicit input.
	x := graph.Input("x", shapes.Make(dtypes.Float32, 3))
	fn := must.M1(link.NewFunction(
		[]*graph.Value{x},
		[]*graph.Value{graph.Add(v.Handle(), x)}))
	out := must.M1(fn.Call1([]float32{10, 10, 10}))
	assert.Equal(t, []float32{11, 12, 13}, out.Flat())

	// SetValue changes what the next call sees.
	require.NoError(t, v.SetValue(tensors.FromValue([]float32{0, 0, 7})))
	out = must.M1(fn.Call1([]float32{10, 10, 10}))
	assert.Equal(t, []float32{10, 10, 17}, out.Flat())

	// Shape mismatches are rejected.
	assert.Error(t, v.SetValue(tensors.FromValue([]float32{1})))
}

func TestSharedHandleAsOutput(t *testing.T) {
	// A function with no explicit inputs whose declared output is the variable's
	// handle itself: each call returns the variable's current value.
	v := link.NewVariableValue("cell", []float64{4, 5})
	fn := must.M1(link.NewFunction(nil, []*graph.Value{v.Handle()}))

	out := must.M1(fn.Call1())
	assert.Equal(t, []float64{4, 5}, out.Flat())

	require.NoError(t, v.SetValue(tensors.FromValue([]float64{-1, 0})))
	out = must.M1(fn.Call1())
	assert.Equal(t, []float64{-1, 0}, out.Flat())

	// The round trip does not disturb the variable.
	assert.Equal(t, []float64{-1, 0}, v.MustValue().Flat())
}

func TestVariableFinalize(t *testing.T) {
	v := link.NewVariableValue("scratch", []float64{1, 2})
	handle := v.Handle()
	_, found := link.VariableOf(handle)
	require.True(t, found)

	fn := must.M1(link.NewFunction(nil, []*graph.Value{handle}))
	v.Finalize()

	// The handle no longer resolves, so new functions cannot be built over it...
	_, found = link.VariableOf(handle)
	assert.False(t, found)
	_, err := link.NewFunction(nil, []*graph.Value{handle})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither an input nor a variable")

	// ...and already-built ones fail to feed it.
	_, err = fn.Call()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finalized")
}

func TestUpdateAccumulates(t *testing.T) {
	counter := link.NewVariableValue("counter", int64(0))
	x := graph.Input("x", shapes.Scalar(dtypes.Int64))

	// Returns the counter's value before the update, like an old-style post
	// increment, and adds x to it.
	fn := must.M1(link.NewFunction(
		[]*graph.Value{x},
		[]*graph.Value{graph.Identity(counter.Handle())},
		link.WithUpdate(counter, graph.Add(counter.Handle(), x))))

	for ii := int64(0); ii < 5; ii++ {
		out := must.M1(fn.Call1(int64(1)))
		assert.Equal(t, ii, out.Value())
	}
	assert.Equal(t, int64(5), counter.MustValue().Value())

	// Only one update per variable.
	_, err := link.NewFunction(
		[]*graph.Value{x}, nil,
		link.WithUpdate(counter, graph.Add(counter.Handle(), x)),
		link.WithUpdate(counter, counter.Handle()))
	assert.Error(t, err)
}

func TestGuard(t *testing.T) {
	x := graph.Vector("x", dtypes.Float64)
	guarded := graph.Check(x, graph.GuardAssertion, "testing",
		graph.GreaterThan(x, graph.ConstAs(x, 0)))
	fn := must.M1(link.NewFunction([]*graph.Value{x}, []*graph.Value{guarded}))

	// All conditions hold: the value passes through unchanged.
	out := must.M1(fn.Call1([]float64{1, 2, 3}))
	assert.Equal(t, []float64{1, 2, 3}, out.Flat())

	// Any false element fails the call with a GuardError carrying the message.
	_, err := fn.Call([]float64{1, -2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testing")
	var guardErr *graph.GuardError
	require.True(t, errors.As(err, &guardErr))
	assert.Equal(t, graph.GuardAssertion, guardErr.Kind)
	assert.Equal(t, "testing", guardErr.Message)
}

func TestGuardFailureLeavesStateUnchanged(t *testing.T) {
	state := link.NewVariableValue("state", float64(0))
	x := graph.Input("x", shapes.Scalar(dtypes.Float64))

	// The update is declared, but it only commits when the whole call succeeds.
	guarded := graph.Check(x, graph.GuardInvalidValue, "x must be positive",
		graph.GreaterThan(x, graph.ConstAs(x, 0)))
	fn := must.M1(link.NewFunction(
		[]*graph.Value{x},
		[]*graph.Value{guarded},
		link.WithUpdate(state, graph.Add(state.Handle(), guarded))))

	must.M1(fn.Call(float64(3)))
	assert.Equal(t, float64(3), state.MustValue().Value())

	_, err := fn.Call(float64(-1))
	require.Error(t, err)
	var guardErr *graph.GuardError
	require.True(t, errors.As(err, &guardErr))
	assert.Equal(t, graph.GuardInvalidValue, guardErr.Kind)
	assert.Equal(t, float64(3), state.MustValue().Value(), "failed call must not change the variable")

	must.M1(fn.Call(float64(2)))
	assert.Equal(t, float64(5), state.MustValue().Value())
}

func TestFreeValueMustBeInputOrVariable(t *testing.T) {
	x := graph.Input("x", shapes.Scalar(dtypes.Float32))
	stray := graph.Input("stray", shapes.Scalar(dtypes.Float32))
	_, err := link.NewFunction(
		[]*graph.Value{x}, []*graph.Value{graph.Add(x, stray)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stray")
}

func TestWithMode(t *testing.T) {
	x := graph.Vector("x", dtypes.Float32)
	fn := must.M1(link.NewFunction(
		[]*graph.Value{x},
		[]*graph.Value{graph.Softmax(x, graph.AllAxes)},
		link.WithMode("go:devices=2")))
	assert.Equal(t, "go", fn.Backend().Name())
	assert.Equal(t, backends.DeviceNum(2), fn.Backend().NumDevices())

	out := must.M1(fn.Call1([]float32{0, 0}))
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, out.Flat(), 1e-6)

	_, err := link.NewFunction([]*graph.Value{x}, []*graph.Value{x},
		link.WithMode("no-such-backend"))
	assert.Error(t, err)
}

func TestVariableDevicePlacement(t *testing.T) {
	backend, ok := backends.MustNewWithConfig("go:devices=2").(link.Backend)
	require.True(t, ok)

	v := link.NewVariableValue("weights", []float32{1, 2}, link.OnDevice(1))
	assert.Equal(t, backends.DeviceNum(1), v.DeviceNum())

	x := graph.Input("x", shapes.Make(dtypes.Float32, 2))
	fn := must.M1(link.NewFunction(
		[]*graph.Value{x},
		[]*graph.Value{graph.Mul(v.Handle(), x)},
		link.WithBackend(backend),
		link.WithUpdate(v, graph.Add(v.Handle(), x))))

	out := must.M1(fn.Call1([]float32{10, 10}))
	assert.Equal(t, []float32{10, 20}, out.Flat())
	assert.Equal(t, []float32{11, 12}, v.MustValue().Flat())
}
