package harness

import (
	"io"

	"github.com/launchdarkly/service-testkit/framework"
)

// Option is an optional parameter for New or NewFactory.
type Option interface {
	apply(*harnessOptions)
}

type harnessOptions struct {
	logger        framework.Logger
	startupOutput io.Writer
	serviceOutput io.Writer
}

type loggerOption struct{ logger framework.Logger }

func (o loggerOption) apply(opts *harnessOptions) { opts.logger = o.logger }

// WithLogger sets the destination for debug logging from the harness.
func WithLogger(logger framework.Logger) Option {
	return loggerOption{logger}
}

type startupOutputOption struct{ w io.Writer }

func (o startupOutputOption) apply(opts *harnessOptions) { opts.startupOutput = o.w }

// WithStartupOutput sets a destination for progress messages while connecting to the test
// service. By default they are discarded.
func WithStartupOutput(w io.Writer) Option {
	return startupOutputOption{w}
}

type serviceOutputOption struct{ w io.Writer }

func (o serviceOutputOption) apply(opts *harnessOptions) { opts.serviceOutput = o.w }

// WithServiceOutput sets a destination for the standard output and standard error of a test
// service process that the harness launches. By default they are discarded.
func WithServiceOutput(w io.Writer) Option {
	return serviceOutputOption{w}
}
