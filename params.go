package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/launchdarkly/service-testkit/framework/ldtest"
	"github.com/launchdarkly/service-testkit/servicedef"

	"github.com/alessio/shellescape"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	defaultPort = 8111
	envPrefix   = "TESTKIT"

	flagURL              = "url"
	flagCommand          = "command"
	flagDescriptor       = "descriptor"
	flagName             = "name"
	flagHost             = "host"
	flagPort             = "port"
	flagStartupTimeout   = "startup-timeout"
	flagStopServiceAtEnd = "stop-service-at-end"
	flagRun              = "run"
	flagSkip             = "skip"
	flagDebug            = "debug"
	flagDebugAll         = "debug-all"
)

type commandParams struct {
	descriptorPath string
	descriptor     servicedef.ServiceDescriptor
	filters        ldtest.RegexFilters
	debug          bool
	debugAll       bool
}

func addFlags(cmd *cobra.Command, filters *ldtest.RegexFilters) {
	fs := cmd.Flags()
	fs.String(flagURL, "", "test service URL")
	fs.String(flagCommand, "", "command line that launches the test service")
	fs.String(flagDescriptor, "", "YAML file describing the test service")
	fs.String(flagName, "", "name of the test service in test output")
	fs.String(flagHost, servicedef.DefaultHarnessHost, "external hostname of the test harness")
	fs.Int(flagPort, defaultPort, "port that the test harness will listen on (0 for any free port)")
	fs.Duration(flagStartupTimeout, servicedef.DefaultStartupTimeout, "how long to wait for the test service to start")
	fs.Bool(flagStopServiceAtEnd, false, "tell test service to exit after the test run")
	fs.Var(&filters.MustMatch, flagRun, "regex pattern(s) to select tests to run")
	fs.Var(&filters.MustNotMatch, flagSkip, "regex pattern(s) to select tests not to run")
	fs.Bool(flagDebug, false, "enable debug logging for failed tests")
	fs.Bool(flagDebugAll, false, "enable debug logging for all tests")
}

// newViper binds every scalar flag to an environment variable such as TESTKIT_URL or
// TESTKIT_STOP_SERVICE_AT_END.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{
		flagURL, flagCommand, flagDescriptor, flagName, flagHost, flagPort,
		flagStartupTimeout, flagStopServiceAtEnd, flagDebug, flagDebugAll,
	} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// readParams builds the service descriptor. Values from a descriptor file are used unless
// the same setting was given as a flag or environment variable.
func readParams(v *viper.Viper, filters ldtest.RegexFilters) (commandParams, error) {
	var d servicedef.ServiceDescriptor
	path := v.GetString(flagDescriptor)
	if path != "" {
		loaded, err := servicedef.LoadServiceDescriptor(path)
		if err != nil {
			return commandParams{}, err
		}
		d = loaded
	} else {
		d.HarnessHost = v.GetString(flagHost)
		d.HarnessPort = v.GetInt(flagPort)
	}

	if v.IsSet(flagURL) {
		d.URL = v.GetString(flagURL)
	}
	if v.IsSet(flagCommand) {
		d.Command = v.GetString(flagCommand)
	}
	if v.IsSet(flagName) {
		d.Name = v.GetString(flagName)
	}
	if v.IsSet(flagHost) {
		d.HarnessHost = v.GetString(flagHost)
	}
	if v.IsSet(flagPort) {
		d.HarnessPort = v.GetInt(flagPort)
	}
	if v.IsSet(flagStartupTimeout) {
		d.StartupTimeoutMS = ldvalue.NewOptionalInt(int(v.GetDuration(flagStartupTimeout) / time.Millisecond))
	}
	if v.IsSet(flagStopServiceAtEnd) {
		d.StopServiceAtEnd = v.GetBool(flagStopServiceAtEnd)
	}

	if err := d.Validate(); err != nil {
		return commandParams{}, err
	}
	return commandParams{
		descriptorPath: path,
		descriptor:     d,
		filters:        filters,
		debug:          v.GetBool(flagDebug),
		debugAll:       v.GetBool(flagDebugAll),
	}, nil
}

// rerunCommand returns a command line that runs only the given tests again with the same
// service settings.
func (c commandParams) rerunCommand(program string, failed []ldtest.TestID) string {
	var b commandBuilder
	b.add(program)
	d := c.descriptor
	if c.descriptorPath != "" {
		b.add("--"+flagDescriptor, c.descriptorPath)
	}
	b.add("--"+flagURL, d.URL)
	if d.Command != "" {
		b.add("--"+flagCommand, d.Command)
	}
	if d.Name != "" {
		b.add("--"+flagName, d.Name)
	}
	b.add("--"+flagHost, d.EffectiveHarnessHost(), "--"+flagPort, strconv.Itoa(d.HarnessPort))
	if d.StartupTimeoutMS.IsDefined() {
		b.add("--"+flagStartupTimeout, (time.Duration(d.StartupTimeoutMS.IntValue()) * time.Millisecond).String())
	}
	if d.StopServiceAtEnd {
		b.add("--" + flagStopServiceAtEnd)
	}
	for _, id := range failed {
		b.add("--"+flagRun, ldtest.PathPattern(id))
	}
	if c.debugAll {
		b.add("--" + flagDebugAll)
	} else {
		b.add("--" + flagDebug)
	}
	return b.String()
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
