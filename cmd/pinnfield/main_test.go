package main

import (
	"testing"

	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/pinn/ml/layers/field"
	"github.com/gomlx/pinn/ml/precision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegularizerFlag(t *testing.T) {
	spec, err := parseRegularizerFlag("")
	require.NoError(t, err)
	assert.Equal(t, field.DefaultRegularizer, spec)

	spec, err = parseRegularizerFlag("0.01, 0.02")
	require.NoError(t, err)
	assert.Equal(t, field.Pair(0.01, 0.02), spec)

	spec, err = parseRegularizerFlag("l2=0.5")
	require.NoError(t, err)
	assert.Equal(t, field.Named(0, 0.5), spec)

	for _, value := range []string{"0.1", "0.1,0.2,0.3", "a,b", "l1=x", "l3=1", "l1=1,0.2"} {
		_, err = parseRegularizerFlag(value)
		assert.Errorf(t, err, "value %q", value)
	}
}

func TestCollocationSequence(t *testing.T) {
	input := collocationSequence(2, 3)
	require.NoError(t, input.Shape().CheckDims(2, 3, 2))
	points := input.Value().([][][]float64)
	assert.Equal(t, []float64{0, 0}, points[0][0])
	assert.Equal(t, []float64{0.5, 0}, points[0][1])
	assert.Equal(t, []float64{1, 0.5}, points[1][2])

	single := collocationSequence(1, 1).Value().([][][]float64)
	assert.Equal(t, []float64{0, 0}, single[0][0])
}

func TestEvaluate(t *testing.T) {
	u := field.New("u").Units(3).ActivationName("tanh").Precision(dtypes.Float64).
		Registry(precision.MustNewRegistry(precision.DefaultDType)).MustDone()
	v := field.New("v").ActivationName("sin").Precision(dtypes.Float32).
		Registry(precision.MustNewRegistry(precision.DefaultDType)).MustDone()
	fields := []*field.Field{u, v}

	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.RngStateFromSeed(3)
	outputs, maxDiffs := evaluate(backend, ctx, fields, collocationSequence(2, 5))
	require.Len(t, outputs, 2)
	require.Len(t, maxDiffs, 2)
	require.NoError(t, outputs[0].Shape().CheckDims(2, 5, 3))
	require.NoError(t, outputs[1].Shape().CheckDims(2, 5, 1))
	assert.Equal(t, dtypes.Float64, outputs[1].DType())
	for ii, f := range fields {
		assert.LessOrEqual(t, maxDiffs[ii], verifyTolerance(f.DType()))
	}

	assert.NotEmpty(t, summaryTable(u, 2).Render())
	rendered := outputsTable(outputs[0], 2).Render()
	assert.Contains(t, rendered, "3 more")
}

func TestBuildFieldsFromConfig(t *testing.T) {
	previous := *flagConfig
	defer func() { *flagConfig = previous }()
	*flagConfig = "testdata/heat.yaml"

	fields, err := buildFields()
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "u", fields[0].Name())
	assert.Equal(t, dtypes.Float64, fields[0].DType())
	assert.Equal(t, field.Coefficients{L1: 0.001, L2: 0.01}, fields[0].KernelCoefficients())
	assert.Equal(t, 2, fields[1].Units())
	assert.Equal(t, field.Coefficients{L2: 0.01}, fields[1].BiasCoefficients())

	*flagConfig = "testdata/missing.yaml"
	_, err = buildFields()
	assert.Error(t, err)
}
