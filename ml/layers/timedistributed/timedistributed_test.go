package timedistributed

import (
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestApplyShapes(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	out := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
		x := IotaFull(g, shapes.Make(dtypes.Float32, 2, 5, 4))
		y := Apply(ctx, func(ctx *context.Context, x *Node) *Node {
			require.NoError(t, x.Shape().CheckDims(10, 4))
			return layers.DenseWithBias(ctx, x, 3)
		}, x)
		require.NoError(t, y.Shape().CheckDims(2, 5, 3))
		return y
	})
	require.NoError(t, out.Shape().CheckDims(2, 5, 3))
}

// TestSharedParameters checks that every step of the output is the wrapped layer applied to the same
// step of the input, with the same variables.
func TestSharedParameters(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.RngStateFromSeed(42)
	ctx = ctx.WithInitializer(initializers.RandomNormalFn(ctx, 1.0))
	const numSteps = 4
	outputs := context.ExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		x := ctx.RandomUniform(g, shapes.Make(dtypes.Float64, 3, numSteps, 2))
		denseCtx := ctx.In("dense").Checked(false)
		fn := Wrap(func(ctx *context.Context, x *Node) *Node {
			return layers.DenseWithBias(denseCtx, x, 5)
		})
		full := fn(ctx, x)
		var perStep []*Node
		for step := range numSteps {
			perStep = append(perStep, InsertAxes(layers.DenseWithBias(denseCtx, Step(x, step), 5), 1))
		}
		byStep := Concatenate(perStep, TimeAxis)
		return []*Node{full, ReduceAllMax(Abs(Sub(full, byStep)))}
	})
	require.NoError(t, outputs[0].Shape().CheckDims(3, numSteps, 5))
	require.Less(t, tensors.ToScalar[float64](outputs[1]), 1e-9)

	var numVars int
	ctx.In("dense").EnumerateVariablesInScope(func(v *context.Variable) { numVars++ })
	require.Equal(t, 2, numVars, "only one set of weights and biases should have been created")
}

func TestStep(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	outputs := ExecOnceN(backend, func(g *Graph) []*Node {
		x := IotaFull(g, shapes.Make(dtypes.Int32, 2, 3, 1))
		return []*Node{Step(x, 1), Step(x, -1)}
	})
	require.Equal(t, [][]int32{{1}, {4}}, outputs[0].Value())
	require.Equal(t, [][]int32{{2}, {5}}, outputs[1].Value())
}

func TestInvalidInputs(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	identity := func(ctx *context.Context, x *Node) *Node { return x }
	require.Panics(t, func() { Wrap(nil) })
	require.Panics(t, func() {
		_ = context.ExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
			return Apply(ctx, identity, IotaFull(g, shapes.Make(dtypes.Float32, 2, 3)))
		})
	})
	require.Panics(t, func() {
		_ = context.ExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
			x := IotaFull(g, shapes.Make(dtypes.Float32, 2, 3, 1))
			return Apply(ctx, func(ctx *context.Context, x *Node) *Node { return ReduceSum(x, 0) }, x)
		})
	})
}
