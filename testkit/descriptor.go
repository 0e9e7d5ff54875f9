package testkit

import (
	"fmt"
	"reflect"
)

// DescriptorTag is the struct tag key that marks a descriptor field, as in
// `testkit:"descriptor"`.
const DescriptorTag = "testkit"

const descriptorTagValue = "descriptor"

const descriptorAccessorName = "TestDescriptor()"

// DescriptorSource can be implemented by a test class to supply its descriptor directly,
// instead of tagging a field.
type DescriptorSource[D any] interface {
	TestDescriptor() D
}

// LocateDescriptor finds the one descriptor declared by a test class.
//
// The candidates are the TestDescriptor() accessor, if the class implements
// DescriptorSource[D], and every top-level field of the class struct that is tagged
// `testkit:"descriptor"`. Exactly one candidate must exist; otherwise the result is a
// *ConfigurationError wrapping ErrNoDescriptor or ErrAmbiguousDescriptor.
func LocateDescriptor[D any](class interface{}) (D, error) {
	var zero D
	className := classNameOf(class)

	var candidates []string
	source, hasAccessor := class.(DescriptorSource[D])
	if hasAccessor {
		candidates = append(candidates, descriptorAccessorName)
	}

	v := reflect.ValueOf(class)
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	var fields []reflect.StructField
	if v.Kind() == reflect.Struct {
		for i := 0; i < v.NumField(); i++ {
			f := v.Type().Field(i)
			if f.Tag.Get(DescriptorTag) == descriptorTagValue {
				fields = append(fields, f)
				candidates = append(candidates, f.Name)
			}
		}
	} else if !hasAccessor {
		return zero, &ConfigurationError{
			Class: className,
			Err:   fmt.Errorf("%w: test class must be a struct or a pointer to a struct", ErrInvalidDescriptor),
		}
	}

	switch {
	case len(candidates) == 0:
		return zero, &ConfigurationError{Class: className, Err: ErrNoDescriptor}
	case len(candidates) > 1:
		return zero, &ConfigurationError{Class: className, Fields: candidates, Err: ErrAmbiguousDescriptor}
	case hasAccessor:
		return source.TestDescriptor(), nil
	}

	f := fields[0]
	if !f.IsExported() {
		return zero, &ConfigurationError{
			Class:  className,
			Fields: []string{f.Name},
			Err:    fmt.Errorf("%w: descriptor field must be exported", ErrInvalidDescriptor),
		}
	}
	want := reflect.TypeOf((*D)(nil)).Elem()
	if !f.Type.AssignableTo(want) {
		return zero, &ConfigurationError{
			Class:  className,
			Fields: []string{f.Name},
			Err:    fmt.Errorf("%w: field has type %s, expected %s", ErrInvalidDescriptor, f.Type, want),
		}
	}
	var d D
	reflect.ValueOf(&d).Elem().Set(v.FieldByIndex(f.Index))
	return d, nil
}

func classNameOf(class interface{}) string {
	if class == nil {
		return "<nil>"
	}
	t := reflect.TypeOf(class)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
