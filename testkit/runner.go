package testkit

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TestingT is the part of a test runner that Run depends on. Both *testing.T and *ldtest.T
// satisfy TestingT of themselves.
type TestingT[T any] interface {
	Errorf(format string, args ...interface{})
	FailNow()
	Cleanup(func())
	Run(name string, action func(T)) bool
}

type testMethod struct {
	name   string
	fn     reflect.Value
	params []Parameter
}

// Run runs every test method of a test class as a subtest of t, with a harness built by
// factory from the class's descriptor.
//
// A test method is an exported method whose name starts with "Test", whose first parameter is
// the runner's own type (such as *testing.T or *ldtest.T), and which returns nothing. Any
// further parameters are supplied by the parameter resolvers: a parameter whose type is
// exactly H receives the class's harness.
//
// The harness is started before the first test method and stopped in a t.Cleanup function,
// so with *testing.T it stays up until any parallel subtests have finished. If the class is
// misconfigured or the harness cannot be started, the failure is reported on t and no test
// methods run. A failure to stop the harness is reported on t as well, without changing the
// results of the individual test methods.
func Run[T TestingT[T], D any, H Harness](t T, class interface{}, factory Factory[D, H], options ...Option) {
	RunWithExtension(t, class, NewExtension(factory, options...))
}

// RunWithExtension is the same as Run, but uses an Extension that has already been created.
func RunWithExtension[T TestingT[T], D any, H Harness](t T, class interface{}, ext *Extension[D, H]) {
	runnerType := reflect.TypeOf((*T)(nil)).Elem()
	methods, err := discoverTestMethods(class, runnerType)
	if err != nil {
		t.Errorf("%s", err)
		t.FailNow()
		return
	}

	scope := ext.NewScope(class)
	if err := ext.BeforeAll(scope); err != nil {
		t.Errorf("%s", err)
		t.FailNow()
		return
	}
	t.Cleanup(func() {
		if err := ext.AfterAll(scope); err != nil {
			t.Errorf("%s", err)
		}
	})

	if receiver, ok := class.(HarnessReceiver[H]); ok {
		h, err := scope.Harness()
		if err != nil {
			t.Errorf("%s", err)
			t.FailNow()
			return
		}
		receiver.UseHarness(h)
	}

	for _, m := range methods {
		m := m
		t.Run(m.name, func(t1 T) {
			args := make([]reflect.Value, 0, len(m.params)+1)
			args = append(args, reflect.ValueOf(t1))
			for _, p := range m.params {
				v, err := ext.resolveArgument(p, scope)
				if err != nil {
					t1.Errorf("%s", err)
					t1.FailNow()
					return
				}
				args = append(args, v)
			}
			m.fn.Call(args)
		})
	}
}

func discoverTestMethods(class interface{}, runnerType reflect.Type) ([]testMethod, error) {
	className := classNameOf(class)
	if class == nil {
		return nil, &ConfigurationError{Class: className, Err: fmt.Errorf("%w: test class is nil", ErrInvalidTestMethod)}
	}
	v := reflect.ValueOf(class)
	typ := v.Type()

	var methods []testMethod
	var invalid []string
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if !isTestName(m.Name) {
			continue
		}
		fnType := m.Type // includes the receiver as the first input
		if fnType.NumIn() < 2 || fnType.In(1) != runnerType || fnType.NumOut() != 0 || fnType.IsVariadic() {
			invalid = append(invalid, m.Name)
			continue
		}
		tm := testMethod{name: m.Name, fn: v.Method(i)}
		for j := 2; j < fnType.NumIn(); j++ {
			tm.params = append(tm.params, Parameter{
				Index:  j - 1,
				Type:   fnType.In(j),
				Owner:  className,
				Method: m.Name,
			})
		}
		methods = append(methods, tm)
	}
	if len(invalid) > 0 {
		return nil, &ConfigurationError{
			Class:  className,
			Fields: invalid,
			Err:    fmt.Errorf("%w: test methods must take %s as their first parameter and return nothing", ErrInvalidTestMethod, runnerType),
		}
	}
	return methods, nil
}

// isTestName uses the same rule as "go test": the name is "Test" or continues with anything
// but a lowercase letter. The descriptor accessor is excluded.
func isTestName(name string) bool {
	if name == "TestDescriptor" || !strings.HasPrefix(name, "Test") {
		return false
	}
	if len(name) == len("Test") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len("Test"):])
	return !unicode.IsLower(r)
}
