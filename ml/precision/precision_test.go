package precision

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegistryResolve(t *testing.T) {
	r := MustNewRegistry(dtypes.Float32)

	// Nothing requested: current value, no change.
	dtype, changed, err := r.Resolve(dtypes.InvalidDType)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dtype)
	assert.False(t, changed)

	// Same as current.
	dtype, changed, err = r.Resolve(dtypes.Float32)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dtype)
	assert.False(t, changed)

	// Different: adopted and written back.
	dtype, changed, err = r.Resolve(dtypes.Float64)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float64, dtype)
	assert.True(t, changed)
	assert.Equal(t, dtypes.Float64, r.Get())

	dtype, _, err = r.Resolve(dtypes.InvalidDType)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float64, dtype)

	// Unsupported: error, registry untouched.
	_, _, err = r.Resolve(dtypes.Int32)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.Equal(t, dtypes.Float64, r.Get())
}

func TestNewRegistry(t *testing.T) {
	_, err := NewRegistry(dtypes.Bool)
	require.ErrorIs(t, err, ErrUnsupported)
	require.Panics(t, func() { MustNewRegistry(dtypes.Int64) })
	r := MustNewRegistry(dtypes.Float16)
	require.Equal(t, dtypes.Float16, r.Get())
	require.ErrorIs(t, r.Set(dtypes.Uint8), ErrUnsupported)
	require.Equal(t, dtypes.Float16, r.Get())
}

func TestGlobal(t *testing.T) {
	previous := Default()
	defer func() { require.NoError(t, SetDefault(previous)) }()

	require.NoError(t, SetDefault(dtypes.Float64))
	require.Equal(t, dtypes.Float64, Global().Get())
	require.NoError(t, SetDefault(dtypes.Float32))
	require.Equal(t, dtypes.Float32, Default())
}

func TestRegistryConcurrency(t *testing.T) {
	r := MustNewRegistry(dtypes.Float32)
	var eg errgroup.Group
	for ii := range 64 {
		eg.Go(func() error {
			requested := Supported[ii%len(Supported)]
			if ii%2 == 0 {
				_, _, err := r.Resolve(requested)
				return err
			}
			if err := r.Set(requested); err != nil {
				return err
			}
			if !IsSupported(r.Get()) {
				return errors.Errorf("registry holds unsupported %s", r.Get())
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	require.True(t, IsSupported(r.Get()))
}

func TestParse(t *testing.T) {
	for name, want := range map[string]dtypes.DType{
		"float16": dtypes.Float16, "F16": dtypes.Float16, "half": dtypes.Float16,
		"float32": dtypes.Float32, "32": dtypes.Float32, " single ": dtypes.Float32,
		"float64": dtypes.Float64, "f64": dtypes.Float64, "Double": dtypes.Float64,
	} {
		got, err := Parse(name)
		require.NoErrorf(t, err, "Parse(%q)", name)
		assert.Equalf(t, want, got, "Parse(%q)", name)
	}
	_, err := Parse("int8")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestEpsilon(t *testing.T) {
	assert.Equal(t, 1.0/1024, Epsilon(dtypes.Float16))
	assert.Equal(t, 1.0/(1<<23), Epsilon(dtypes.Float32))
	assert.Equal(t, 1.0/(1<<52), Epsilon(dtypes.Float64))
	assert.Zero(t, Epsilon(dtypes.Int32))
}
