// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package field

import (
	"sort"
	"strings"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/pkg/errors"
)

// DefaultBiasStddev is the standard deviation of DefaultBiasInitializer.
const DefaultBiasStddev = 0.05

// Initializer creates the variable initializer for a weight, using the context's random number generator.
// It is called when the field's variables are created.
type Initializer func(ctx *context.Context) context.VariableInitializer

// DefaultKernelInitializer is a Glorot (a.k.a. Xavier) normal initializer.
func DefaultKernelInitializer(ctx *context.Context) context.VariableInitializer {
	return initializers.XavierNormalFn(ctx)
}

// DefaultBiasInitializer is a zero-centered normal initializer with DefaultBiasStddev.
func DefaultBiasInitializer(ctx *context.Context) context.VariableInitializer {
	return initializers.RandomNormalFn(ctx, DefaultBiasStddev)
}

// Fixed returns an Initializer that always uses the given variable initializer, e.g.: initializers.Zero.
func Fixed(initializer context.VariableInitializer) Initializer {
	return func(*context.Context) context.VariableInitializer {
		return initializer
	}
}

var namedInitializers = map[string]Initializer{
	"glorot_normal":  DefaultKernelInitializer,
	"xavier_normal":  DefaultKernelInitializer,
	"glorot_uniform": func(ctx *context.Context) context.VariableInitializer { return initializers.GlorotUniformFn(ctx) },
	"xavier_uniform": func(ctx *context.Context) context.VariableInitializer { return initializers.XavierUniformFn(ctx) },
	"he":             func(ctx *context.Context) context.VariableInitializer { return initializers.HeFn(ctx) },
	"random_normal":  DefaultBiasInitializer,
	"random_uniform": func(ctx *context.Context) context.VariableInitializer {
		return initializers.RandomUniformFn(ctx, -DefaultBiasStddev, DefaultBiasStddev)
	},
	"zeros": Fixed(initializers.Zero),
	"ones":  Fixed(initializers.One),
}

// InitializerNames lists the names accepted by InitializerFromName.
func InitializerNames() []string {
	names := make([]string, 0, len(namedInitializers))
	for name := range namedInitializers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitializerFromName returns the initializer with the given name (see InitializerNames).
// An empty name returns nil, meaning "use the default".
func InitializerFromName(name string) (Initializer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, nil
	}
	init, found := namedInitializers[name]
	if !found {
		return nil, errors.Errorf("unknown initializer %q, valid values are %v", name, InitializerNames())
	}
	return init, nil
}
