// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

package gotensor_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symtensor/symtensor/backends"
	"github.com/symtensor/symtensor/backends/goref"
	"github.com/symtensor/symtensor/backends/gotensor"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/tensors"
)

func TestConfig(t *testing.T) {
	backend := backends.MustNewWithConfig("go:devices=4")
	defer backend.Finalize()
	assert.Equal(t, gotensor.BackendName, backend.Name())
	assert.Equal(t, backends.DeviceNum(4), backend.NumDevices())

	_, err := backends.NewWithConfig("go:devices=0")
	assert.Error(t, err)
	_, err = backends.NewWithConfig("go:bogus=1")
	assert.Error(t, err)
}

func TestDataInterface(t *testing.T) {
	backend := backends.MustNewWithConfig("go:devices=2")
	defer backend.Finalize()

	original := tensors.FromValue([][]int32{{1, 2, 3}, {4, 5, 6}})
	buffer, err := backends.TensorToBuffer(backend, 1, original)
	require.NoError(t, err)

	shape, err := backend.BufferShape(buffer)
	require.NoError(t, err)
	assert.True(t, original.Shape().Equal(shape))
	deviceNum, err := backend.BufferDeviceNum(buffer)
	require.NoError(t, err)
	assert.Equal(t, backends.DeviceNum(1), deviceNum)

	roundTrip, err := backends.TensorFromBuffer(backend, buffer)
	require.NoError(t, err)
	assert.True(t, original.Equal(roundTrip))

	// Out-of-range device.
	_, err = backends.TensorToBuffer(backend, 2, original)
	assert.Error(t, err)

	// A finalized buffer can't be used again.
	require.NoError(t, backend.BufferFinalize(buffer))
	_, err = backend.BufferShape(buffer)
	assert.Error(t, err)
}

// compareToRef runs the same one-output graph on the "go" and the reference
// backends over the same inputs and checks the results agree.
func compareToRef(t *testing.T, name string, inputs []*graph.Value, output *graph.Value, args ...any) {
	t.Helper()
	want := callOn(t, goref.BackendName, name, inputs, output, args...)
	got := callOn(t, "go", name, inputs, output, args...)
	require.True(t, want.Shape().Equal(got.Shape()),
		"%s: shapes diverge, %s on ref vs %s on go", name, want.Shape(), got.Shape())
	switch want.DType() {
	case dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16:
		assert.InDeltaSlice(t,
			want.ToFloat32().Flat().([]float32), got.ToFloat32().Flat().([]float32),
			1e-3, "%s: values diverge", name)
	default:
		assert.True(t, want.Equal(got), "%s: want %s, got %s", name, want, got)
	}
}

func callOn(t *testing.T, config, name string, inputs []*graph.Value, output *graph.Value, args ...any) *tensors.Tensor {
	t.Helper()
	fn, err := link.NewFunction(inputs, []*graph.Value{output},
		link.WithName(name), link.WithMode(config))
	require.NoError(t, err, "%s: compiling for %q", name, config)
	out, err := fn.Call1(args...)
	require.NoError(t, err, "%s: running on %q", name, config)
	return out
}

func TestAgreesWithReference(t *testing.T) {
	fVec := func() *graph.Value { return graph.Vector("x", dtypes.Float64) }
	fMat := func() *graph.Value { return graph.Matrix("m", dtypes.Float64) }
	matArg := [][]float64{{1, -2, 3}, {-4, 5, -6}}

	t.Run("unary", func(t *testing.T) {
		for _, op := range []struct {
			name  string
			apply func(x *graph.Value) *graph.Value
			arg   []float64
		}{
			{"Neg", graph.Neg, []float64{1, -2, 3}},
			{"Abs", graph.Abs, []float64{1, -2, 3}},
			{"Exp", graph.Exp, []float64{-1, 0, 2}},
			{"Log", graph.Log, []float64{0.1, 1, 7}},
			{"Log1p", graph.Log1p, []float64{-0.5, 0, 3}},
		} {
			x := fVec()
			compareToRef(t, op.name, []*graph.Value{x}, op.apply(x), op.arg)
		}
	})

	t.Run("binary", func(t *testing.T) {
		for _, op := range []struct {
			name  string
			apply func(x, y *graph.Value) *graph.Value
		}{
			{"Add", graph.Add}, {"Sub", graph.Sub}, {"Mul", graph.Mul},
			{"Div", graph.Div}, {"FloorDiv", graph.FloorDiv},
		} {
			x, y := fVec(), graph.Vector("y", dtypes.Float64)
			compareToRef(t, op.name, []*graph.Value{x, y}, op.apply(x, y),
				[]float64{1, -7, 9}, []float64{2, 2, -4})
			// Scalar broadcast.
			x = fVec()
			compareToRef(t, op.name+"Scalar", []*graph.Value{x},
				op.apply(x, graph.ConstAs(x, 3)), []float64{1, -7, 9})
		}
	})

	t.Run("comparisons", func(t *testing.T) {
		for _, op := range []struct {
			name  string
			apply func(x, y *graph.Value) *graph.Value
		}{
			{"GreaterThan", graph.GreaterThan}, {"GreaterOrEqual", graph.GreaterOrEqual},
			{"LessThan", graph.LessThan}, {"LessOrEqual", graph.LessOrEqual},
			{"Equal", graph.Equal},
		} {
			x, y := fVec(), graph.Vector("y", dtypes.Float64)
			compareToRef(t, op.name, []*graph.Value{x, y}, op.apply(x, y),
				[]float64{1, 2, 3}, []float64{3, 2, 1})
		}
	})

	t.Run("structural", func(t *testing.T) {
		m := fMat()
		compareToRef(t, "Transpose", []*graph.Value{m}, graph.Transpose(m), matArg)
		m = fMat()
		compareToRef(t, "ExpandDims", []*graph.Value{m}, graph.ExpandDims(m, 1), matArg)
		m = fMat()
		compareToRef(t, "Reshape", []*graph.Value{m},
			graph.Reshape(m, 3, graph.ReshapeUnknownDim), matArg)
		row := graph.Input("row", tensors.FromValue([][]float64{{1, 2, 3}}).Shape())
		compareToRef(t, "DropAxis", []*graph.Value{row}, graph.DimShuffle(row, 1),
			[][]float64{{1, 2, 3}})
	})

	t.Run("softmax", func(t *testing.T) {
		for _, axis := range []int{0, 1, -1, graph.AllAxes} {
			m := fMat()
			compareToRef(t, "Softmax", []*graph.Value{m}, graph.Softmax(m, axis), matArg)
			m = fMat()
			compareToRef(t, "LogSoftmax", []*graph.Value{m}, graph.LogSoftmax(m, axis), matArg)
			dy, sm := fMat(), graph.Matrix("sm", dtypes.Float64)
			compareToRef(t, "SoftmaxGrad", []*graph.Value{dy, sm},
				graph.SoftmaxGrad(dy, sm, axis), matArg,
				[][]float64{{0.2, 0.3, 0.5}, {0.1, 0.8, 0.1}})
		}
	})

	t.Run("int-floordiv", func(t *testing.T) {
		x := graph.Vector("x", dtypes.Int64)
		y := graph.Vector("y", dtypes.Int64)
		compareToRef(t, "FloorDivInt", []*graph.Value{x, y}, graph.FloorDiv(x, y),
			[]int64{7, -7, 9, -9}, []int64{2, 2, -4, -4})
	})
}

func TestFloat16Kernels(t *testing.T) {
	x := graph.Vector("x", dtypes.Float16)
	compareToRef(t, "ExpFloat16", []*graph.Value{x}, graph.Exp(x),
		tensors.Float16FromFloat32([]float32{-1, 0, 1.5}, 3))

	x = graph.Vector("x", dtypes.BFloat16)
	y := graph.Vector("y", dtypes.BFloat16)
	compareToRef(t, "AddBFloat16", []*graph.Value{x, y}, graph.Add(x, y),
		tensors.BFloat16FromFloat32([]float32{1, 2, 3}, 3),
		tensors.BFloat16FromFloat32([]float32{0.5, -1, 4}, 3))
}

func TestBufferRecycling(t *testing.T) {
	backend := must.M1(gotensor.New("")).(link.Backend)
	defer backend.Finalize()

	x := graph.Vector("x", dtypes.Float32)
	fn := must.M1(link.NewFunction(
		[]*graph.Value{x}, []*graph.Value{graph.Neg(x)},
		link.WithBackend(backend)))
	// Repeated calls recycle the argument buffers through the pools; results stay
	// independent of the recycling.
	for ii := 0; ii < 10; ii++ {
		out := must.M1(fn.Call1([]float32{float32(ii), 1}))
		assert.Equal(t, []float32{float32(-ii), -1}, out.Flat())
	}
}
