// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package field builds the output fields of physics-informed neural networks (PINNs).
//
// A field is a dense map (a learnable `activation(x·W + b)`) applied independently, with shared
// parameters, to every step of a time (or collocation) sequence: it takes inputs shaped
// `[batch, time, features]` and returns `[batch, time, units]`.
//
// Fields are configured with New and its setters, and built with Done, which validates the arguments,
// resolves the precision and fills in the defaults:
//
//	u, err := field.New("u").
//		Units(3).
//		Activation(activations.TypeTanh).
//		KernelRegularizer(field.Pair(0.01, 0.02)).
//		Precision(dtypes.Float64).
//		Done()
//	...
//	y := u.Apply(ctx, x)
//
// Defaults: 1 unit, identity activation, Glorot normal kernel initializer, normal bias initializer
// (see DefaultBiasStddev), L1 and L2 regularization of DefaultL1 and DefaultL2 for both kernel and bias,
// trainable variables, and the precision of the registry (the global precision.Global by default).
//
// Requesting a precision different from the registry's also changes the registry: with the global
// registry that affects every field built afterward without an explicit precision. Use Registry to
// thread a model-specific registry instead.
package field

import (
	"strings"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/pinn/ml/layers/timedistributed"
	"github.com/gomlx/pinn/ml/precision"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config is created with New and configured with its methods. Done builds the Field.
type Config struct {
	name          string
	units         int
	activation    ActivationFn
	activationErr error
	activationStr string

	kernelInit, biasInit Initializer
	kernelReg, biasReg   any
	trainable            bool

	dtype    dtypes.DType
	registry *precision.Registry
}

// New creates the configuration of a field with the given name.
// The name is also the scope of its variables, so it must be non-empty and can't contain "/".
func New(name string) *Config {
	return &Config{
		name:          name,
		units:         1,
		activation:    Linear,
		activationStr: "linear",
		trainable:     true,
		dtype:         dtypes.InvalidDType,
	}
}

// Units sets the output dimension of the field. Default is 1.
//
// It is validated when Done is called, and a value < 1 fails as a *ConstructionError.
func (c *Config) Units(units int) *Config {
	c.units = units
	return c
}

// Activation sets one of the standard activations. Default is the identity (activations.TypeNone).
func (c *Config) Activation(activation activations.Type) *Config {
	if !activation.IsAType() {
		c.setActivationErr(invalidArgumentf("activation must be callable, %d is not a known activation", int(activation)))
		return c
	}
	c.activation = func(x *Node) *Node { return activations.Apply(activation, x) }
	c.activationStr = activation.String()
	c.activationErr = nil
	return c
}

// ActivationFn sets an arbitrary activation function. It must not be nil.
func (c *Config) ActivationFn(fn ActivationFn) *Config {
	if fn == nil {
		c.setActivationErr(invalidArgumentf("activation must be callable, got nil"))
		return c
	}
	c.activation = fn
	c.activationStr = "custom"
	c.activationErr = nil
	return c
}

// ActivationName sets the activation by name: "", "linear" and "identity" are the identity, "sin" and
// "cos" are the trigonometric functions (common in PINNs), and any other name must be a valid
// activations.Type name (e.g. "tanh", "swish").
func (c *Config) ActivationName(name string) *Config {
	fn, err := activationFromName(name)
	if err != nil {
		c.setActivationErr(err)
		return c
	}
	c.activation = fn
	c.activationStr = strings.ToLower(strings.TrimSpace(name))
	if c.activationStr == "" {
		c.activationStr = "linear"
	}
	c.activationErr = nil
	return c
}

func (c *Config) setActivationErr(err error) {
	c.activation = nil
	c.activationErr = err
}

func activationFromName(name string) (ActivationFn, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "linear", "identity":
		return Linear, nil
	case "sin":
		return Sin, nil
	case "cos":
		return Cos, nil
	}
	activation, err := activations.TypeString(name)
	if err != nil {
		return nil, invalidArgumentf("activation must be callable, unknown activation %q (valid: linear, sin, cos, %v)",
			name, activations.TypeValues())
	}
	return func(x *Node) *Node { return activations.Apply(activation, x) }, nil
}

// KernelInitializer sets the initializer of the weights. If nil, DefaultKernelInitializer is used.
func (c *Config) KernelInitializer(init Initializer) *Config {
	c.kernelInit = init
	return c
}

// BiasInitializer sets the initializer of the biases. If nil, DefaultBiasInitializer is used.
func (c *Config) BiasInitializer(init Initializer) *Config {
	c.biasInit = init
	return c
}

// KernelRegularizer sets the L1+L2 regularization of the weights.
func (c *Config) KernelRegularizer(spec RegularizerSpec) *Config {
	c.kernelReg = spec
	return c
}

// BiasRegularizer sets the L1+L2 regularization of the biases.
func (c *Config) BiasRegularizer(spec RegularizerSpec) *Config {
	c.biasReg = spec
	return c
}

// KernelRegularizerFrom sets the regularization of the weights from any value accepted by
// ParseRegularizer (nil, `[l1, l2]` or `{"l1": ..., "l2": ...}`). It is parsed by Done.
func (c *Config) KernelRegularizerFrom(value any) *Config {
	c.kernelReg = value
	return c
}

// BiasRegularizerFrom is like KernelRegularizerFrom, for the biases.
func (c *Config) BiasRegularizerFrom(value any) *Config {
	c.biasReg = value
	return c
}

// Trainable sets whether the variables of the field are trained. Default is true.
func (c *Config) Trainable(trainable bool) *Config {
	c.trainable = trainable
	return c
}

// Precision requests the float DType of the field. If it differs from the registry's precision, the
// registry is updated too. Default is dtypes.InvalidDType: use the registry's precision.
func (c *Config) Precision(dtype dtypes.DType) *Config {
	c.dtype = dtype
	return c
}

// Registry sets the precision registry used to resolve the precision. Default is precision.Global().
func (c *Config) Registry(registry *precision.Registry) *Config {
	c.registry = registry
	return c
}

func validName(name string) bool {
	return name != "" && strings.TrimSpace(name) == name && !strings.Contains(name, context.ScopeSeparator)
}

// Done validates the configuration and builds the Field.
//
// Invalid name or activation return an error wrapping ErrInvalidArgument, before any side effect.
// Failures of the precision registry, the regularizers or the dense map return a *ConstructionError.
// A failed Done leaves the registry's precision unchanged.
func (c *Config) Done() (*Field, error) {
	if !validName(c.name) {
		return nil, invalidArgumentf("name must be a string identifier (non-empty, no %q), got %q",
			context.ScopeSeparator, c.name)
	}
	if c.activationErr != nil {
		return nil, c.activationErr
	}
	if c.activation == nil {
		return nil, invalidArgumentf("activation must be callable")
	}

	kernelCoef, err := resolveRegularizer(c.kernelReg)
	if err != nil {
		return nil, constructionErrorf(c.name, err, "kernel regularizer")
	}
	biasCoef, err := resolveRegularizer(c.biasReg)
	if err != nil {
		return nil, constructionErrorf(c.name, err, "bias regularizer")
	}

	// Checked here as well as in NewDense, so a failure never reaches the registry.
	if c.units < 1 {
		return nil, constructionErrorf(c.name, errors.Errorf("units must be >= 1, got %d", c.units), "dense map")
	}

	registry := c.registry
	if registry == nil {
		registry = precision.Global()
	}
	dtype, changed, err := registry.Resolve(c.dtype)
	if err != nil {
		return nil, constructionErrorf(c.name, err, "resolving precision")
	}
	if changed {
		klog.V(1).Infof("field %q changed the precision to %s", c.name, dtype)
	}

	kernelInit, biasInit := c.kernelInit, c.biasInit
	if kernelInit == nil {
		kernelInit = DefaultKernelInitializer
	}
	if biasInit == nil {
		biasInit = DefaultBiasInitializer
	}

	dense, err := NewDense(DenseConfig{
		Name:       c.name,
		Units:      c.units,
		Activation: c.activation,
		KernelInit: kernelInit,
		BiasInit:   biasInit,
		KernelReg:  kernelCoef.Regularizer(),
		BiasReg:    biasCoef.Regularizer(),
		UseBias:    true,
		Trainable:  c.trainable,
		DType:      dtype,
	})
	if err != nil {
		return nil, constructionErrorf(c.name, err, "dense map")
	}
	f := &Field{
		dense:      dense,
		apply:      timedistributed.Wrap(dense.Apply),
		activation: c.activationStr,
		kernelCoef: kernelCoef,
		biasCoef:   biasCoef,
	}
	klog.V(1).Infof("field %q: units=%d, activation=%s, dtype=%s, kernel regularizer (%s), bias regularizer (%s)",
		c.name, c.units, c.activationStr, dtype, kernelCoef, biasCoef)
	return f, nil
}

// MustDone is like Done, but panics on error.
func (c *Config) MustDone() *Field {
	return must.M1(c.Done())
}

func resolveRegularizer(value any) (Coefficients, error) {
	spec, err := ParseRegularizer(value)
	if err != nil {
		return Coefficients{}, err
	}
	return spec.Coefficients()
}

// Field is a dense map applied to every step of a sequence. It is created with New(...).Done().
type Field struct {
	dense      *Dense
	apply      timedistributed.LayerFn
	activation string

	kernelCoef, biasCoef Coefficients
}

// Name of the field, also the scope of its variables.
func (f *Field) Name() string { return f.dense.cfg.Name }

// Units is the output dimension of the field.
func (f *Field) Units() int { return f.dense.cfg.Units }

// DType is the resolved precision of the field.
func (f *Field) DType() dtypes.DType { return f.dense.cfg.DType }

// UseBias is always true for fields.
func (f *Field) UseBias() bool { return f.dense.cfg.UseBias }

// Trainable reports whether the field's variables are trained.
func (f *Field) Trainable() bool { return f.dense.cfg.Trainable }

// Activation returns the name of the activation ("custom" for ActivationFn).
func (f *Field) Activation() string { return f.activation }

// KernelCoefficients returns the resolved regularization of the weights.
func (f *Field) KernelCoefficients() Coefficients { return f.kernelCoef }

// BiasCoefficients returns the resolved regularization of the biases.
func (f *Field) BiasCoefficients() Coefficients { return f.biasCoef }

// Dense returns the inner dense map.
func (f *Field) Dense() *Dense { return f.dense }

// NumParams returns the number of scalar parameters of the field for the given number of input features.
func (f *Field) NumParams(features int) int {
	n := features * f.Units()
	if f.UseBias() {
		n += f.Units()
	}
	return n
}

// Apply the field to x, shaped `[batch, time, features]`, returning `[batch, time, units]`.
//
// Every call shares the same variables (in ctx's scope named after the field). It panics on invalid
// inputs, like other GoMLX layers.
func (f *Field) Apply(ctx *context.Context, x *Node) *Node {
	return f.apply(ctx, x)
}

// Call is like Apply, but returns a *ConstructionError instead of panicking.
func (f *Field) Call(ctx *context.Context, x *Node) (output *Node, err error) {
	exception := exceptions.Try(func() { output = f.Apply(ctx, x) })
	if exception != nil {
		return nil, &ConstructionError{Field: f.Name(), Err: exceptionToError(exception)}
	}
	return output, nil
}
