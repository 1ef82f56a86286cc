package field

import (
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializerFromName(t *testing.T) {
	init, err := InitializerFromName("")
	require.NoError(t, err)
	assert.Nil(t, init)

	for _, name := range InitializerNames() {
		init, err := InitializerFromName(name)
		require.NoErrorf(t, err, "initializer %q", name)
		require.NotNilf(t, init, "initializer %q", name)
	}
	_, err = InitializerFromName("orthogonal")
	require.Error(t, err)
}

func TestNamedInitializersValues(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.RngStateFromSeed(1)
	outputs := context.ExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		shape := shapes.Make(dtypes.Float32, 64, 64)
		zeros, _ := InitializerFromName("zeros")
		ones, _ := InitializerFromName("Ones")
		bias, _ := InitializerFromName("random_normal")
		return []*Node{
			ReduceAllSum(zeros(ctx)(g, shape)),
			ReduceAllMean(ones(ctx)(g, shape)),
			ReduceAllMax(Abs(bias(ctx)(g, shape))),
		}
	})
	assert.Equal(t, float32(0), tensors.ToScalar[float32](outputs[0]))
	assert.Equal(t, float32(1), tensors.ToScalar[float32](outputs[1]))
	biasMax := tensors.ToScalar[float32](outputs[2])
	assert.Greater(t, biasMax, float32(0))
	assert.Less(t, biasMax, float32(10*DefaultBiasStddev))
}
