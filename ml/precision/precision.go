// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package precision keeps track of the floating-point precision (a float DType) used when building
// fields and other layers.
//
// A Registry holds the active precision. There is one process-wide registry, returned by Global, which
// starts at Float32 and is what fields use unless they are given a registry of their own. Models that
// want to avoid coupling between unrelated constructions should create their own Registry (see NewRegistry)
// and pass it explicitly to every field.
//
// All Registry methods are safe for concurrent use.
package precision

import (
	"math"
	"strings"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// DefaultDType is the precision the global registry starts with.
const DefaultDType = dtypes.Float32

// Supported lists the precisions a Registry accepts, from lowest to highest.
var Supported = []dtypes.DType{dtypes.Float16, dtypes.Float32, dtypes.Float64}

// ErrUnsupported is returned (wrapped) when a DType that is not one of Supported is given.
var ErrUnsupported = errors.New("unsupported precision")

// IsSupported returns whether dtype can be used as a precision.
func IsSupported(dtype dtypes.DType) bool {
	for _, s := range Supported {
		if s == dtype {
			return true
		}
	}
	return false
}

// Registry holds the active precision.
type Registry struct {
	mu    sync.RWMutex
	dtype dtypes.DType
}

// NewRegistry creates a Registry initialized to dtype.
func NewRegistry(dtype dtypes.DType) (*Registry, error) {
	if !IsSupported(dtype) {
		return nil, errors.Wrapf(ErrUnsupported, "precision.NewRegistry(%s)", dtype)
	}
	return &Registry{dtype: dtype}, nil
}

// MustNewRegistry is like NewRegistry, but panics on error.
func MustNewRegistry(dtype dtypes.DType) *Registry {
	r, err := NewRegistry(dtype)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the current precision.
func (r *Registry) Get() dtypes.DType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dtype
}

// Set changes the current precision. It fails, leaving the registry unchanged, if dtype is not supported.
func (r *Registry) Set(dtype dtypes.DType) error {
	if !IsSupported(dtype) {
		return errors.Wrapf(ErrUnsupported, "cannot set precision to %s, valid values are %v", dtype, Supported)
	}
	r.mu.Lock()
	previous := r.dtype
	r.dtype = dtype
	r.mu.Unlock()
	if previous != dtype {
		klog.V(1).Infof("precision changed from %s to %s", previous, dtype)
	}
	return nil
}

// Resolve returns the precision to use for a construction that requested the given dtype.
//
// If requested is dtypes.InvalidDType (nothing requested) the current precision is returned.
// If requested differs from the current precision, it is adopted and also becomes the registry's
// precision for every later construction, and changed is true.
//
// The read and the update happen atomically.
func (r *Registry) Resolve(requested dtypes.DType) (dtype dtypes.DType, changed bool, err error) {
	if requested == dtypes.InvalidDType {
		return r.Get(), false, nil
	}
	if !IsSupported(requested) {
		return dtypes.InvalidDType, false, errors.Wrapf(ErrUnsupported,
			"requested precision %s, valid values are %v", requested, Supported)
	}
	r.mu.Lock()
	previous := r.dtype
	r.dtype = requested
	r.mu.Unlock()
	changed = previous != requested
	if changed {
		klog.V(1).Infof("precision changed from %s to %s", previous, requested)
	}
	return requested, changed, nil
}

var global = MustNewRegistry(DefaultDType)

// Global returns the process-wide registry.
func Global() *Registry { return global }

// Default returns the precision of the process-wide registry.
func Default() dtypes.DType { return global.Get() }

// SetDefault sets the precision of the process-wide registry.
func SetDefault(dtype dtypes.DType) error { return global.Set(dtype) }

// Parse converts a precision name to its DType.
//
// Accepted (case-insensitive): "float16", "float32", "float64", "f16", "f32", "f64", "16", "32", "64",
// "half", "single" and "double".
func Parse(name string) (dtypes.DType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "float16", "f16", "16", "half":
		return dtypes.Float16, nil
	case "float32", "f32", "32", "single":
		return dtypes.Float32, nil
	case "float64", "f64", "64", "double":
		return dtypes.Float64, nil
	}
	return dtypes.InvalidDType, errors.Wrapf(ErrUnsupported, "unknown precision name %q", name)
}

// Epsilon returns the machine epsilon (the difference between 1 and the next representable value)
// for the given precision. It returns 0 for unsupported dtypes.
func Epsilon(dtype dtypes.DType) float64 {
	switch dtype {
	case dtypes.Float16:
		one := float16.Fromfloat32(1)
		return float64(float16.Frombits(one.Bits()+1).Float32()) - 1
	case dtypes.Float32:
		return float64(math.Nextafter32(1, 2)) - 1
	case dtypes.Float64:
		return math.Nextafter(1, 2) - 1
	}
	return 0
}
