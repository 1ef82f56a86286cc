// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package field

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/regularizers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ActivationFn is applied to the output of the dense map.
type ActivationFn func(x *Node) *Node

// Linear is the identity activation: it returns x unchanged.
func Linear(x *Node) *Node { return x }

// DenseConfig holds the resolved parameters of a Dense map.
type DenseConfig struct {
	Name       string
	Units      int
	Activation ActivationFn
	KernelInit Initializer
	BiasInit   Initializer
	KernelReg  regularizers.Regularizer
	BiasReg    regularizers.Regularizer
	UseBias    bool
	Trainable  bool
	DType      dtypes.DType
}

// Dense is a learnable affine map `activation(x·W + b)` over the last axis of its input.
//
// Its variables, "weights" shaped `[features, units]` and "biases" shaped `[units]`, are created in the
// scope named after the map on the first Apply, and reused by later calls. Regularizers are applied once
// per graph.
type Dense struct {
	cfg DenseConfig
}

// regularizedGraphParam marks, per graph, the scope of a Dense map whose regularization was already added.
const regularizedGraphParam = "field_regularized_scope"

// NewDense validates cfg and creates the dense map. It fails if Units < 1, the name is empty or
// the activation or initializers are missing.
func NewDense(cfg DenseConfig) (*Dense, error) {
	if cfg.Name == "" {
		return nil, errors.New("dense map requires a name")
	}
	if cfg.Units < 1 {
		return nil, errors.Errorf("dense map %q: units must be >= 1, got %d", cfg.Name, cfg.Units)
	}
	if cfg.Activation == nil || cfg.KernelInit == nil || (cfg.UseBias && cfg.BiasInit == nil) {
		return nil, errors.Errorf("dense map %q: activation and initializers must be set", cfg.Name)
	}
	if !cfg.DType.IsFloat() {
		return nil, errors.Errorf("dense map %q: dtype must be a float, got %s", cfg.Name, cfg.DType)
	}
	return &Dense{cfg: cfg}, nil
}

// Config returns the parameters the map was created with.
func (d *Dense) Config() DenseConfig { return d.cfg }

// Units is the output dimension.
func (d *Dense) Units() int { return d.cfg.Units }

// UseBias reports whether the map adds a bias term.
func (d *Dense) UseBias() bool { return d.cfg.UseBias }

// Apply the dense map to x, shaped `[<batch dimensions...>, features]`. The output is shaped
// `[<batch dimensions...>, units]`. x is converted to the map's dtype if needed.
func (d *Dense) Apply(ctx *context.Context, x *Node) *Node {
	if x.Rank() < 1 {
		Panicf("dense map %q: input must have rank >= 1, got %s", d.cfg.Name, x.Shape())
	}
	g := x.Graph()
	ctx = ctx.In(d.cfg.Name).Checked(false)
	if x.DType() != d.cfg.DType {
		x = ConvertDType(x, d.cfg.DType)
	}

	dims := x.Shape().Dimensions
	features := dims[len(dims)-1]
	if features == 0 {
		Panicf("dense map %q: input has an empty feature axis, shape %s", d.cfg.Name, x.Shape())
	}
	weightsVar := ctx.WithInitializer(d.cfg.KernelInit(ctx)).
		VariableWithShape("weights", shapes.Make(d.cfg.DType, features, d.cfg.Units)).
		SetTrainable(d.cfg.Trainable)
	var biasVar *context.Variable
	if d.cfg.UseBias {
		biasVar = ctx.WithInitializer(d.cfg.BiasInit(ctx)).
			VariableWithShape("biases", shapes.Make(d.cfg.DType, d.cfg.Units)).
			SetTrainable(d.cfg.Trainable)
	}

	// Graph params are inherited by sub-scopes, so the mark holds the scope it was set for.
	if context.GetGraphParamOr(ctx, g, regularizedGraphParam, "") != ctx.Scope() {
		ctx.SetGraphParam(g, regularizedGraphParam, ctx.Scope())
		if d.cfg.KernelReg != nil {
			d.cfg.KernelReg(ctx, g, weightsVar)
		}
		if biasVar != nil && d.cfg.BiasReg != nil {
			d.cfg.BiasReg(ctx, g, biasVar)
		}
	}

	// Collapse batch dimensions: [batchSize, features].
	batchSize := x.Shape().Size() / features
	flat := Reshape(x, batchSize, features)
	output := Dot(flat, weightsVar.ValueGraph(g))
	if biasVar != nil {
		output = Add(output, InsertAxes(biasVar.ValueGraph(g), 0))
	}
	output = d.cfg.Activation(output)

	outputDims := make([]int, len(dims))
	copy(outputDims, dims)
	outputDims[len(outputDims)-1] = d.cfg.Units
	return Reshape(output, outputDims...)
}
