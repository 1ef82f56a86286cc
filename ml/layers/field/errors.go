// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package field

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is wrapped by the errors returned when the field's own arguments (name, activation)
// are invalid. Test with errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

func invalidArgumentf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// ConstructionError reports a failure in one of the parts a field delegates to: the precision registry,
// the regularizer specification, the dense map or the graph building.
type ConstructionError struct {
	// Field is the name of the field being built.
	Field string
	Err   error
}

// Error implements error.
func (e *ConstructionError) Error() string {
	return fmt.Sprintf("building field %q: %v", e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConstructionError) Unwrap() error { return e.Err }

func constructionErrorf(field string, err error, format string, args ...any) error {
	return &ConstructionError{Field: field, Err: errors.Wrapf(err, format, args...)}
}

// exceptionToError converts a recovered panic into an error.
func exceptionToError(exception any) error {
	if err, ok := exception.(error); ok {
		return err
	}
	return errors.Errorf("%v", exception)
}
