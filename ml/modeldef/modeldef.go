// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package modeldef reads model definitions: the list of output fields of a PINN model, written in YAML.
//
// Example:
//
//	precision: float64
//	fields:
//	  - name: u
//	    units: 3
//	    activation: tanh
//	    kernel_regularizer: [0.01, 0.02]
//	  - name: p
//	    bias_regularizer: {l1: 0.5, l2: 0.5}
//	    trainable: false
//
// Each definition builds its fields with its own precision.Registry, started at the definition's precision,
// so building a definition never changes the process-wide precision.
package modeldef

import (
	"bytes"
	"os"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/pinn/ml/layers/field"
	"github.com/gomlx/pinn/ml/precision"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// FieldDef is the definition of one field. Omitted values take the field package defaults.
type FieldDef struct {
	Name              string                `yaml:"name"`
	Units             *int                  `yaml:"units"`
	Activation        string                `yaml:"activation"`
	KernelInitializer string                `yaml:"kernel_initializer"`
	BiasInitializer   string                `yaml:"bias_initializer"`
	KernelRegularizer field.RegularizerSpec `yaml:"kernel_regularizer"`
	BiasRegularizer   field.RegularizerSpec `yaml:"bias_regularizer"`
	Trainable         *bool                 `yaml:"trainable"`
	Precision         string                `yaml:"precision"`
}

// Definition of a model's output fields.
type Definition struct {
	// Precision is the starting precision of the model. If empty, the process-wide precision at the
	// time Build is called is used.
	Precision string     `yaml:"precision"`
	Fields    []FieldDef `yaml:"fields"`
}

// Parse a YAML definition. Unknown keys are errors.
func Parse(data []byte) (*Definition, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	def := &Definition{}
	if err := decoder.Decode(def); err != nil {
		return nil, errors.Wrap(err, "parsing model definition")
	}
	if len(def.Fields) == 0 {
		return nil, errors.New("model definition has no fields")
	}
	return def, nil
}

// Load reads and parses the definition in the given file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model definition")
	}
	def, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "file %q", path)
	}
	return def, nil
}

// Model holds the fields built from a Definition and the registry they were built with.
type Model struct {
	Fields   []*field.Field
	Registry *precision.Registry
}

// Build creates all fields of the definition, in order.
//
// Field names must be unique, since they are also the scopes of their variables. A field that requests
// a precision changes the model's registry for the fields that follow it, but not the process-wide one.
func (def *Definition) Build() (*Model, error) {
	dtype := precision.Default()
	if def.Precision != "" {
		var err error
		dtype, err = precision.Parse(def.Precision)
		if err != nil {
			return nil, err
		}
	}
	registry, err := precision.NewRegistry(dtype)
	if err != nil {
		return nil, err
	}

	model := &Model{Registry: registry}
	seen := make(map[string]bool, len(def.Fields))
	for ii, fd := range def.Fields {
		if seen[fd.Name] {
			return nil, errors.Errorf("field #%d: duplicate field name %q", ii, fd.Name)
		}
		seen[fd.Name] = true
		f, err := fd.config(registry)
		if err != nil {
			return nil, errors.WithMessagef(err, "field #%d (%q)", ii, fd.Name)
		}
		built, err := f.Done()
		if err != nil {
			return nil, errors.WithMessagef(err, "field #%d", ii)
		}
		model.Fields = append(model.Fields, built)
	}
	klog.V(1).Infof("model definition built %d fields, precision %s", len(model.Fields), registry.Get())
	return model, nil
}

// config converts the definition to a field configuration.
func (fd *FieldDef) config(registry *precision.Registry) (*field.Config, error) {
	cfg := field.New(fd.Name).
		ActivationName(fd.Activation).
		KernelRegularizer(fd.KernelRegularizer).
		BiasRegularizer(fd.BiasRegularizer).
		Registry(registry)
	if fd.Units != nil {
		cfg.Units(*fd.Units)
	}
	if fd.Trainable != nil {
		cfg.Trainable(*fd.Trainable)
	}
	if fd.Precision != "" {
		dtype, err := precision.Parse(fd.Precision)
		if err != nil {
			return nil, err
		}
		cfg.Precision(dtype)
	}
	kernelInit, err := field.InitializerFromName(fd.KernelInitializer)
	if err != nil {
		return nil, errors.WithMessage(err, "kernel_initializer")
	}
	biasInit, err := field.InitializerFromName(fd.BiasInitializer)
	if err != nil {
		return nil, errors.WithMessage(err, "bias_initializer")
	}
	return cfg.KernelInitializer(kernelInit).BiasInitializer(biasInit), nil
}

// Field returns the field with the given name, or nil if there is none.
func (m *Model) Field(name string) *field.Field {
	for _, f := range m.Fields {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// DType returns the model's current precision.
func (m *Model) DType() dtypes.DType { return m.Registry.Get() }

// Apply every field to x, shaped `[batch, time, features]`, and returns their outputs in order.
func (m *Model) Apply(ctx *context.Context, x *Node) []*Node {
	outputs := make([]*Node, len(m.Fields))
	for ii, f := range m.Fields {
		outputs[ii] = f.Apply(ctx, x)
	}
	return outputs
}
