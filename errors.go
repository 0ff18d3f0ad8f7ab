package param

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ValidationError reports a value rejected by a parameter's constraints.
// It names the attribute, the owning class and the violated constraint so
// failures stay debuggable in declarative code.
type ValidationError struct {
	Class      string
	Attribute  string
	Constraint string
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s constraint violated: %s",
		e.Class, e.Attribute, e.Constraint, e.Message)
}

// ReadOnlyError reports a write to a read-only parameter.
type ReadOnlyError struct {
	Class     string
	Attribute string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("read-only parameter %s.%s cannot be modified", e.Class, e.Attribute)
}

// ConstantError reports a write to a constant parameter after the owning
// instance finished construction.
type ConstantError struct {
	Class     string
	Attribute string
}

func (e *ConstantError) Error() string {
	return fmt.Sprintf("constant parameter %s.%s cannot be modified after construction", e.Class, e.Attribute)
}

// UnexpectedAttributeError reports a constructor value or access for a name
// that matches no declared parameter.
type UnexpectedAttributeError struct {
	Class     string
	Attribute string
}

func (e *UnexpectedAttributeError) Error() string {
	return fmt.Sprintf("%s has no parameter %q", e.Class, e.Attribute)
}

// UnsafeOperationError reports an API call made before the target instance
// finished initializing, where partially constructed state could be observed.
type UnsafeOperationError struct {
	Operation string
	Reason    string
}

func (e *UnsafeOperationError) Error() string {
	return fmt.Sprintf("unsafe operation %q on partially initialized instance: %s", e.Operation, e.Reason)
}

// DeclarationError reports an invalid parameter declaration detected at
// class-definition time, such as a default that fails the resolved
// constraints or an unresolvable dependency specification.
type DeclarationError struct {
	Class     string
	Attribute string
	Err       error
}

func (e *DeclarationError) Error() string {
	return fmt.Sprintf("invalid declaration %s.%s: %v", e.Class, e.Attribute, e.Err)
}

func (e *DeclarationError) Unwrap() error {
	return e.Err
}

// DispatchError aggregates errors raised by watcher callbacks during one
// dispatch cycle. Watcher failures never abort sibling watchers; they are
// collected and surfaced once the full cycle has run.
type DispatchError struct {
	Errs *multierror.Error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("watcher dispatch: %v", e.Errs)
}

func (e *DispatchError) Unwrap() error {
	return e.Errs
}

// Errors returns the individual watcher failures.
func (e *DispatchError) Errors() []error {
	if e.Errs == nil {
		return nil
	}
	return e.Errs.Errors
}

// SafeCast performs a type assertion with a descriptive error instead of a
// panic, for callers pulling typed values out of events or value stores.
func SafeCast[T any](value any) (T, error) {
	if value == nil {
		var zero T
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type assertion error: expected %T, got %T (value: %v)", zero, value, value)
	}

	return typed, nil
}
