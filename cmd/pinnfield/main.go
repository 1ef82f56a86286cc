// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// pinnfield builds PINN output fields and evaluates them on a synthetic collocation sequence.
//
// Either give a model definition with -config, or describe a single field with -name, -units, etc.:
//
//	pinnfield -name=u -units=3 -activation=tanh -kernel_reg=0.01,0.02 -precision=float64 -verify
//	pinnfield -config=model.yaml -steps=16
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/pinn/ml/layers/field"
	"github.com/gomlx/pinn/ml/layers/timedistributed"
	"github.com/gomlx/pinn/ml/modeldef"
	"github.com/gomlx/pinn/ml/precision"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "", "YAML model definition. If set, the single-field flags are ignored.")

	flagName       = flag.String("name", "u", "Name of the field.")
	flagUnits      = flag.Int("units", 1, "Output dimension of the field.")
	flagActivation = flag.String("activation", "linear", "Activation: linear, sin, cos, or any GoMLX activation name.")
	flagKernelReg  = flag.String("kernel_reg", "",
		"Kernel regularizer: empty for the default, \"l1,l2\" for a pair or \"l1=...,l2=...\" for named coefficients.")
	flagBiasReg   = flag.String("bias_reg", "", "Bias regularizer, same format as -kernel_reg.")
	flagTrainable = flag.Bool("trainable", true, "Whether the field's variables are trainable.")
	flagPrecision = flag.String("precision", "", "Precision of the field (float16, float32, float64). "+
		"Empty uses the process default.")

	flagBatch    = flag.Int("batch", 2, "Number of sequences evaluated.")
	flagSteps    = flag.Int("steps", 8, "Number of time steps of each sequence.")
	flagSeed     = flag.Int64("seed", 42, "Random seed for the variables initialization.")
	flagVerify   = flag.Bool("verify", false, "Check that each output step equals the dense map applied to that step.")
	flagMaxSteps = flag.Int("show_steps", 4, "Number of output steps printed per field.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	fields, err := buildFields()
	if err != nil {
		klog.Errorf("Failed to build fields: %+v", err)
		os.Exit(1)
	}
	if *flagBatch < 1 || *flagSteps < 1 {
		klog.Errorf("-batch and -steps must be >= 1, got %d and %d", *flagBatch, *flagSteps)
		os.Exit(1)
	}

	backend := backends.MustNew()
	ctx := context.New()
	ctx.RngStateFromSeed(*flagSeed)
	input := collocationSequence(*flagBatch, *flagSteps)
	outputs, maxDiffs := evaluate(backend, ctx, fields, input)

	for ii, f := range fields {
		fmt.Println(titleStyle.Render(fmt.Sprintf("Field %q", f.Name())))
		fmt.Println(summaryTable(f, input.Shape().Dimensions[2]).Render())
		fmt.Println(outputsTable(outputs[ii], *flagMaxSteps).Render())
		if *flagVerify {
			tolerance := verifyTolerance(f.DType())
			if maxDiffs[ii] > tolerance {
				klog.Errorf("field %q: per-step outputs differ by %g > %g", f.Name(), maxDiffs[ii], tolerance)
				os.Exit(1)
			}
			fmt.Printf("verified: max per-step difference %g (tolerance %g)\n", maxDiffs[ii], tolerance)
		}
	}
}

// buildFields from -config or the single-field flags.
func buildFields() ([]*field.Field, error) {
	if *flagConfig != "" {
		def, err := modeldef.Load(*flagConfig)
		if err != nil {
			return nil, err
		}
		model, err := def.Build()
		if err != nil {
			return nil, err
		}
		return model.Fields, nil
	}

	kernelReg, err := parseRegularizerFlag(*flagKernelReg)
	if err != nil {
		return nil, errors.WithMessage(err, "-kernel_reg")
	}
	biasReg, err := parseRegularizerFlag(*flagBiasReg)
	if err != nil {
		return nil, errors.WithMessage(err, "-bias_reg")
	}
	cfg := field.New(*flagName).
		Units(*flagUnits).
		ActivationName(*flagActivation).
		KernelRegularizer(kernelReg).
		BiasRegularizer(biasReg).
		Trainable(*flagTrainable)
	if *flagPrecision != "" {
		dtype, err := precision.Parse(*flagPrecision)
		if err != nil {
			return nil, errors.WithMessage(err, "-precision")
		}
		cfg.Precision(dtype)
	}
	f, err := cfg.Done()
	if err != nil {
		return nil, err
	}
	return []*field.Field{f}, nil
}

// parseRegularizerFlag accepts "", "l1,l2" or "l1=...,l2=...".
func parseRegularizerFlag(value string) (field.RegularizerSpec, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return field.DefaultRegularizer, nil
	}
	parts := strings.Split(value, ",")
	if !strings.Contains(value, "=") {
		values := make([]float64, len(parts))
		for ii, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return field.RegularizerSpec{}, errors.Wrapf(err, "parsing %q", value)
			}
			values[ii] = v
		}
		return field.ParseRegularizer(values)
	}
	named := make(map[string]float64, len(parts))
	for _, part := range parts {
		key, v, found := strings.Cut(part, "=")
		if !found {
			return field.RegularizerSpec{}, errors.Errorf("parsing %q: expected key=value, got %q", value, part)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return field.RegularizerSpec{}, errors.Wrapf(err, "parsing %q", value)
		}
		named[strings.TrimSpace(key)] = f
	}
	return field.ParseRegularizer(named)
}

// collocationSequence returns `[batch, steps, 2]` points (t, x): t spans [0, 1] along the time axis,
// and x spans [0, 1) along the batch axis.
func collocationSequence(batch, steps int) *tensors.Tensor {
	points := make([][][]float64, batch)
	for b := range batch {
		points[b] = make([][]float64, steps)
		x := float64(b) / float64(batch)
		for s := range steps {
			t := 0.0
			if steps > 1 {
				t = float64(s) / float64(steps-1)
			}
			points[b][s] = []float64{t, x}
		}
	}
	return tensors.FromValue(points)
}

// evaluate applies every field to the input and, for each, the maximum absolute difference between
// the sequence output and the dense map applied step by step. Outputs are returned as Float64.
func evaluate(backend backends.Backend, ctx *context.Context, fields []*field.Field, input *tensors.Tensor) (
	outputs []*tensors.Tensor, maxDiffs []float64) {
	numSteps := input.Shape().Dimensions[timedistributed.TimeAxis]
	results := context.ExecOnceN(backend, ctx, func(ctx *context.Context, x *Node) []*Node {
		var nodes, diffs []*Node
		for _, f := range fields {
			y := f.Apply(ctx, x)
			nodes = append(nodes, ConvertDType(y, dtypes.Float64))
			var maxDiff *Node
			for step := range numSteps {
				want := f.Dense().Apply(ctx, timedistributed.Step(x, step))
				diff := ReduceAllMax(Abs(Sub(timedistributed.Step(y, step), want)))
				diff = ConvertDType(diff, dtypes.Float64)
				if maxDiff == nil {
					maxDiff = diff
				} else {
					maxDiff = Max(maxDiff, diff)
				}
			}
			diffs = append(diffs, maxDiff)
		}
		return append(nodes, diffs...)
	}, input)
	outputs = results[:len(fields)]
	for _, diff := range results[len(fields):] {
		maxDiffs = append(maxDiffs, tensors.ToScalar[float64](diff))
	}
	return
}

// verifyTolerance allows for the different summation order of the merged and the per-step products.
func verifyTolerance(dtype dtypes.DType) float64 {
	return 64 * precision.Epsilon(dtype)
}
