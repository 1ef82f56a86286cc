// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package field

import (
	"fmt"
	"math"
	"sort"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/regularizers"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultL1 is the L1 coefficient used when no regularizer is specified.
	DefaultL1 = 0.001

	// DefaultL2 is the L2 coefficient used when no regularizer is specified.
	DefaultL2 = 0.001
)

// RegularizerKind tags the form in which a RegularizerSpec was given.
type RegularizerKind int

const (
	// RegularizerNone means nothing was given: DefaultL1 and DefaultL2 are used.
	RegularizerNone RegularizerKind = iota

	// RegularizerPair is an ordered `[l1, l2]` pair.
	RegularizerPair

	// RegularizerNamed is a `{l1: ..., l2: ...}` mapping. Missing keys are 0.
	RegularizerNamed
)

// String implements fmt.Stringer.
func (k RegularizerKind) String() string {
	switch k {
	case RegularizerNone:
		return "none"
	case RegularizerPair:
		return "pair"
	case RegularizerNamed:
		return "named"
	}
	return fmt.Sprintf("RegularizerKind(%d)", int(k))
}

// Coefficients of a combined L1+L2 regularizer.
type Coefficients struct {
	L1, L2 float64
}

// String implements fmt.Stringer.
func (c Coefficients) String() string {
	return fmt.Sprintf("l1=%g, l2=%g", c.L1, c.L2)
}

// LossDType is the dtype regularization terms are added to the loss with, when the graph has no loss yet.
// Otherwise they take the dtype of the loss already in the graph, so fields of different precisions can
// share one graph.
const LossDType = dtypes.Float32

// Regularizer returns a regularizer adding `l1*sum(|w|) + l2*sum(w^2)` to the graph's loss (see
// train.AddLoss). Zero coefficients are left out, and if both are zero it returns nil.
func (c Coefficients) Regularizer() regularizers.Regularizer {
	if c.L1 <= 0 && c.L2 <= 0 {
		return nil
	}
	return func(ctx *context.Context, g *Graph, weights ...*context.Variable) {
		if len(weights) == 0 {
			Panicf("no weights given to regularizer (%s)", c)
		}
		var penalty *Node
		for _, v := range weights {
			value := v.ValueGraph(g)
			var terms []*Node
			if c.L1 > 0 {
				terms = append(terms, MulScalar(ReduceAllSum(Abs(value)), c.L1))
			}
			if c.L2 > 0 {
				terms = append(terms, MulScalar(ReduceAllSum(Square(value)), c.L2))
			}
			for _, term := range terms {
				if penalty == nil {
					penalty = term
				} else {
					penalty = Add(penalty, term)
				}
			}
		}
		addLoss(ctx, penalty)
	}
}

// addLoss converts loss to the dtype of the graph's current loss (or LossDType) before adding it.
func addLoss(ctx *context.Context, loss *Node) {
	dtype := LossDType
	current, found := ctx.InAbsPath(train.TrainerAbsoluteScope).GetGraphParam(loss.Graph(), train.TrainerLossGraphParamKey)
	if currentLoss, ok := current.(*Node); found && ok && currentLoss != nil {
		dtype = currentLoss.DType()
	}
	if loss.DType() != dtype {
		loss = ConvertDType(loss, dtype)
	}
	train.AddLoss(ctx, loss)
}

// RegularizerSpec describes the L1+L2 regularization of a kernel or a bias.
// The zero value is RegularizerNone.
//
// It can be decoded from YAML: null, a sequence `[l1, l2]` or a mapping `{l1: ..., l2: ...}`.
type RegularizerSpec struct {
	Kind   RegularizerKind
	L1, L2 float64
}

// DefaultRegularizer is the spec used when nothing is given.
var DefaultRegularizer = RegularizerSpec{}

// Pair creates a spec from an `[l1, l2]` pair.
func Pair[T constraints.Float | constraints.Integer](l1, l2 T) RegularizerSpec {
	return RegularizerSpec{Kind: RegularizerPair, L1: float64(l1), L2: float64(l2)}
}

// Named creates a spec from `l1` and `l2` named coefficients.
func Named(l1, l2 float64) RegularizerSpec {
	return RegularizerSpec{Kind: RegularizerNamed, L1: l1, L2: l2}
}

// String implements fmt.Stringer.
func (s RegularizerSpec) String() string {
	switch s.Kind {
	case RegularizerNone:
		return "default"
	case RegularizerPair:
		return fmt.Sprintf("[%g, %g]", s.L1, s.L2)
	case RegularizerNamed:
		return fmt.Sprintf("{l1: %g, l2: %g}", s.L1, s.L2)
	}
	return s.Kind.String()
}

// Coefficients resolves the spec to its L1 and L2 coefficients.
//
// Coefficients must be finite and non-negative.
func (s RegularizerSpec) Coefficients() (Coefficients, error) {
	switch s.Kind {
	case RegularizerNone:
		return Coefficients{L1: DefaultL1, L2: DefaultL2}, nil
	case RegularizerPair, RegularizerNamed:
		for _, v := range []float64{s.L1, s.L2} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return Coefficients{}, errors.Errorf("regularizer %s: coefficients must be finite and >= 0", s)
			}
		}
		return Coefficients{L1: s.L1, L2: s.L2}, nil
	}
	return Coefficients{}, errors.Errorf("invalid regularizer kind %s", s.Kind)
}

// ParseRegularizer normalizes a dynamically typed regularizer specification:
//
//   - nil: RegularizerNone.
//   - RegularizerSpec or *RegularizerSpec: returned as is.
//   - A slice or array with exactly two numbers: RegularizerPair.
//   - A map with string keys, only "l1" and/or "l2", to numbers: RegularizerNamed.
//
// Anything else is an error.
func ParseRegularizer(value any) (RegularizerSpec, error) {
	switch v := value.(type) {
	case nil:
		return DefaultRegularizer, nil
	case RegularizerSpec:
		return v, nil
	case *RegularizerSpec:
		if v == nil {
			return DefaultRegularizer, nil
		}
		return *v, nil
	case [2]float64:
		return Pair(v[0], v[1]), nil
	case []float64:
		return pairFromSlice(v)
	case []float32:
		return pairFromSlice(v)
	case []int:
		return pairFromSlice(v)
	case []any:
		values := make([]float64, len(v))
		for ii, elem := range v {
			f, ok := toFloat64(elem)
			if !ok {
				return RegularizerSpec{}, errors.Errorf("regularizer pair element #%d (%v) is not a number", ii, elem)
			}
			values[ii] = f
		}
		return pairFromSlice(values)
	case map[string]float64:
		return namedFromMap(v)
	case map[string]any:
		values := make(map[string]float64, len(v))
		for key, elem := range v {
			f, ok := toFloat64(elem)
			if !ok {
				return RegularizerSpec{}, errors.Errorf("regularizer coefficient %q (%v) is not a number", key, elem)
			}
			values[key] = f
		}
		return namedFromMap(values)
	}
	return RegularizerSpec{}, errors.Errorf("regularizer must be nil, [l1, l2] or {l1: ..., l2: ...}, got %T", value)
}

func pairFromSlice[T constraints.Float | constraints.Integer](values []T) (RegularizerSpec, error) {
	if len(values) != 2 {
		return RegularizerSpec{}, errors.Errorf("regularizer pair must have exactly 2 values [l1, l2], got %d", len(values))
	}
	return Pair(values[0], values[1]), nil
}

func namedFromMap(values map[string]float64) (RegularizerSpec, error) {
	var unknown []string
	for key := range values {
		if key != "l1" && key != "l2" {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return RegularizerSpec{}, errors.Errorf("regularizer mapping accepts only keys l1 and l2, got %q", unknown)
	}
	return Named(values["l1"], values["l2"]), nil
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *RegularizerSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			*s = DefaultRegularizer
			return nil
		}
	case yaml.SequenceNode:
		var values []float64
		if err := node.Decode(&values); err != nil {
			return errors.Wrapf(err, "line %d: decoding regularizer pair", node.Line)
		}
		spec, err := pairFromSlice(values)
		if err != nil {
			return errors.Wrapf(err, "line %d", node.Line)
		}
		*s = spec
		return nil
	case yaml.MappingNode:
		var values map[string]float64
		if err := node.Decode(&values); err != nil {
			return errors.Wrapf(err, "line %d: decoding regularizer mapping", node.Line)
		}
		spec, err := namedFromMap(values)
		if err != nil {
			return errors.Wrapf(err, "line %d", node.Line)
		}
		*s = spec
		return nil
	}
	return errors.Errorf("line %d: regularizer must be null, [l1, l2] or {l1: ..., l2: ...}", node.Line)
}
