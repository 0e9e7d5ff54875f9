package testkit

import (
	"fmt"
	"reflect"
)

// Parameter describes one parameter of a test method that the runner needs a value for.
type Parameter struct {
	// Index is the position of the parameter in the method signature, not counting the
	// receiver.
	Index int
	Type  reflect.Type
	// Owner is the name of the test class.
	Owner string
	// Method is the name of the test method; it is empty for class-level injection.
	Method string
}

func (p Parameter) String() string {
	where := p.Owner
	if p.Method != "" {
		where += "." + p.Method
	}
	return fmt.Sprintf("parameter %d (%s) of %s", p.Index, p.Type, where)
}

// ParameterResolver supplies values for test method parameters of types other than the
// harness type.
type ParameterResolver interface {
	SupportsParameter(p Parameter) bool
	ResolveParameter(p Parameter) (interface{}, error)
}

// HarnessReceiver can be implemented by a test class to receive the started harness once,
// before any of its test methods run.
type HarnessReceiver[H Harness] interface {
	UseHarness(h H)
}

func harnessType[H Harness]() reflect.Type {
	return reflect.TypeOf((*H)(nil)).Elem()
}

// SupportsParameter returns true if the parameter's declared type is exactly the harness
// type.
func (e *Extension[D, H]) SupportsParameter(p Parameter) bool {
	return p.Type == harnessType[H]()
}

// ResolveParameter returns the harness stored in the scope. It fails with a *ResolutionError
// if the scope is not Started.
func (e *Extension[D, H]) ResolveParameter(p Parameter, scope *Scope[H]) (H, error) {
	var zero H
	if !e.SupportsParameter(p) {
		return zero, &ResolutionError{Parameter: p, Reason: "parameter is not of the testkit type " + harnessType[H]().String()}
	}
	if scope == nil {
		return zero, &ResolutionError{Parameter: p, Reason: "no class scope is active"}
	}
	h, err := scope.Harness()
	if err != nil {
		return zero, &ResolutionError{Parameter: p, Reason: "testkit is not available", Err: err}
	}
	return h, nil
}

// resolveArgument finds a value for one parameter, trying the harness first and then any
// other resolvers in order.
func (e *Extension[D, H]) resolveArgument(p Parameter, scope *Scope[H]) (reflect.Value, error) {
	if e.SupportsParameter(p) {
		h, err := e.ResolveParameter(p, scope)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(&h).Elem(), nil
	}
	for _, r := range e.resolvers {
		if !r.SupportsParameter(p) {
			continue
		}
		value, err := r.ResolveParameter(p)
		if err != nil {
			return reflect.Value{}, &ResolutionError{Parameter: p, Reason: "resolver failed", Err: err}
		}
		if value == nil {
			return reflect.Zero(p.Type), nil
		}
		v := reflect.ValueOf(value)
		if !v.Type().AssignableTo(p.Type) {
			return reflect.Value{}, &ResolutionError{
				Parameter: p,
				Reason:    fmt.Sprintf("resolver returned a value of type %s", v.Type()),
			}
		}
		return v, nil
	}
	return reflect.Value{}, &ResolutionError{Parameter: p, Reason: "no resolver supports this parameter type"}
}
