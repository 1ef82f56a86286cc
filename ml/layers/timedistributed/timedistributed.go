// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package timedistributed applies a layer independently to every step of a sequence.
//
// The input is expected to be shaped `[batch, time, <features...>]`. The wrapped layer sees the
// merged `[batch*time, <features...>]` tensor, so it is built once and its variables are shared by
// every step. The output is shaped `[batch, time, <outputs...>]`.
//
// E.g.: a dense projection applied to each collocation point of a sequence:
//
//	y := timedistributed.Apply(ctx, func(ctx *context.Context, x *Node) *Node {
//		return layers.DenseWithBias(ctx, x, 3)
//	}, x)
package timedistributed

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
)

const (
	// BatchAxis is the axis of the input holding independent examples.
	BatchAxis = 0

	// TimeAxis is the axis of the input holding the sequence steps.
	TimeAxis = 1
)

// LayerFn is a layer that maps `[batch, <features...>]` to `[batch, <outputs...>]`.
type LayerFn func(ctx *context.Context, x *Node) *Node

// Wrap returns a LayerFn that applies fn to every step of the TimeAxis of its input.
func Wrap(fn LayerFn) LayerFn {
	if fn == nil {
		Panicf("timedistributed.Wrap requires a non-nil layer")
	}
	return func(ctx *context.Context, x *Node) *Node {
		return Apply(ctx, fn, x)
	}
}

// Apply fn to every step of the TimeAxis of x, sharing fn's variables across steps.
//
// x must have rank >= 3. fn must preserve its leading (batch) axis.
func Apply(ctx *context.Context, fn LayerFn, x *Node) *Node {
	if x.Rank() < 3 {
		Panicf("timedistributed: input must be shaped [batch, time, features...], got %s", x.Shape())
	}
	dims := x.Shape().Dimensions
	batchSize, numSteps := dims[BatchAxis], dims[TimeAxis]

	merged := make([]int, 0, x.Rank()-1)
	merged = append(merged, batchSize*numSteps)
	merged = append(merged, dims[TimeAxis+1:]...)
	y := fn(ctx, Reshape(x, merged...))

	if y.Rank() < 1 || y.Shape().Dimensions[0] != batchSize*numSteps {
		Panicf("timedistributed: wrapped layer changed the leading axis, expected %d got shape %s",
			batchSize*numSteps, y.Shape())
	}
	split := make([]int, 0, y.Rank()+1)
	split = append(split, batchSize, numSteps)
	split = append(split, y.Shape().Dimensions[1:]...)
	return Reshape(y, split...)
}

// Step returns the slice of the sequence x at the given time step, shaped `[batch, <features...>]`.
// Negative steps count from the end.
func Step(x *Node, step int) *Node {
	if x.Rank() < 3 {
		Panicf("timedistributed.Step: input must be shaped [batch, time, features...], got %s", x.Shape())
	}
	numSteps := x.Shape().Dimensions[TimeAxis]
	if step < 0 {
		step += numSteps
	}
	if step < 0 || step >= numSteps {
		Panicf("timedistributed.Step: step %d out of range for %d steps", step, numSteps)
	}
	sliced := Slice(x, AxisRange(), AxisElem(step))
	return Squeeze(sliced, TimeAxis)
}
