package testkit

import "github.com/launchdarkly/service-testkit/framework"

// Option configures an Extension or a call to Run.
type Option interface {
	apply(*extensionOptions)
}

type extensionOptions struct {
	logger    framework.Logger
	resolvers []ParameterResolver
}

type optionFunc func(*extensionOptions)

func (f optionFunc) apply(o *extensionOptions) { f(o) }

// WithLogger sets the Logger that lifecycle transitions are reported to.
func WithLogger(logger framework.Logger) Option {
	return optionFunc(func(o *extensionOptions) {
		o.logger = logger
	})
}

// WithParameterResolvers adds resolvers for test method parameters that are not of the
// harness type. They are consulted in order, after the harness resolver.
func WithParameterResolvers(resolvers ...ParameterResolver) Option {
	return optionFunc(func(o *extensionOptions) {
		o.resolvers = append(o.resolvers, resolvers...)
	})
}
