package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/launchdarkly/service-testkit/framework"
	"github.com/launchdarkly/service-testkit/framework/harness"
	"github.com/launchdarkly/service-testkit/framework/ldtest"
	"github.com/launchdarkly/service-testkit/servicedef"
	"github.com/launchdarkly/service-testkit/servicetests"
	"github.com/launchdarkly/service-testkit/testkit"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var errTestsFailed = errors.New("some tests failed")

func main() {
	cmd := newRootCommand(os.Args[0])
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(program string) *cobra.Command {
	var filters ldtest.RegexFilters
	cmd := &cobra.Command{
		Use:   "service-testkit",
		Short: "Run contract tests against an HTTP test service",
		Long: `Run contract tests against an HTTP test service.

The test service is described either by flags or by a YAML file (--descriptor).
Every flag except --run and --skip can also be set with an environment variable
named TESTKIT_ followed by the flag name, such as TESTKIT_URL.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			params, err := readParams(v, filters)
			if err != nil {
				return err
			}
			return run(params, program, cmd.OutOrStdout())
		},
	}
	addFlags(cmd, &filters)
	return cmd
}

func run(params commandParams, program string, out io.Writer) error {
	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.NewWithOptions(out, log.Options{
			Level:           log.DebugLevel,
			ReportTimestamp: true,
		})
	}

	var kit *harness.TestHarness
	var kitLock sync.Mutex
	newHarness := harness.NewFactory(
		harness.WithLogger(framework.LoggerWithPrefix(mainDebugLogger, "[harness] ")),
		harness.WithStartupOutput(out),
		harness.WithServiceOutput(serviceOutput(params, out)),
	)
	factory := func(d servicedef.ServiceDescriptor) (*harness.TestHarness, error) {
		h, err := newHarness(d)
		kitLock.Lock()
		kit = h
		kitLock.Unlock()
		return h, err
	}

	fmt.Fprintln(out)
	ldtest.PrintFilterDescription(out, params.filters, nil, nil)

	fmt.Fprintln(out, "Running test suite")

	testLogger := ldtest.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
		Output:               out,
	}
	config := ldtest.TestConfiguration{
		Filter:     params.filters.AsFilter,
		TestLogger: testLogger,
	}
	results := ldtest.Run(config, func(t *ldtest.T) {
		servicetests.RunContractTests(t, params.descriptor, factory,
			testkit.WithLogger(framework.LoggerWithPrefix(mainDebugLogger, "[testkit] ")))
	})

	fmt.Fprintln(out)
	kitLock.Lock()
	if kit != nil {
		ldtest.PrintFilterDescription(out, ldtest.RegexFilters{}, servicetests.AllCapabilities(),
			kit.TestServiceInfo().Capabilities)
	}
	kitLock.Unlock()
	ldtest.WriteResults(out, results)
	if results.OK() {
		return nil
	}

	var failed []ldtest.TestID
	for _, f := range results.Failures {
		if len(f.TestID.Path) > 0 {
			failed = append(failed, f.TestID)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To run only the failed tests again:")
	fmt.Fprintf(out, "  %s\n", params.rerunCommand(program, failed))
	return errTestsFailed
}

func serviceOutput(params commandParams, out io.Writer) io.Writer {
	if params.debugAll {
		return out
	}
	return io.Discard
}
