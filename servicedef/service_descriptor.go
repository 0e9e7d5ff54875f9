package servicedef

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultHarnessHost is the hostname that the test service uses to reach the harness's
	// callback listener, if none is specified.
	DefaultHarnessHost = "localhost"

	// DefaultStartupTimeout is how long the harness waits for the test service to respond to a
	// status query, if StartupTimeoutMS is not set.
	DefaultStartupTimeout = time.Second * 10
)

// ServiceDescriptor describes a test service and how the harness should reach it. A test
// class declares one of these as its descriptor.
type ServiceDescriptor struct {
	// Name is used in log output. If empty, URL is used instead.
	Name string

	// URL is the base URL of the test service.
	URL string

	// Command, if set, is a shell-style command line that the harness runs to launch the
	// test service before querying its status. If empty, the service must already be running.
	Command string

	// Env contains additional environment variables for Command.
	Env map[string]string

	// WorkDir is the working directory for Command.
	WorkDir string

	// HarnessHost is the hostname that the test service should use for callbacks to the
	// harness. It only appears in callback URLs; the listener accepts connections on every
	// interface. The default is DefaultHarnessHost.
	HarnessHost string

	// HarnessPort is the port that the harness listens on for callbacks. Zero means that any
	// free port is used.
	HarnessPort int

	// StartupTimeoutMS is how long to wait for the test service to become available.
	StartupTimeoutMS ldvalue.OptionalInt

	// StopServiceAtEnd causes the harness to tell the test service to exit when it is stopped.
	StopServiceAtEnd bool

	// RequiredCapabilities are capabilities that the test service must report. Starting the
	// harness fails if any of them are missing.
	RequiredCapabilities []string
}

// DisplayName returns Name if it is set, or URL otherwise.
func (d ServiceDescriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.URL
}

// StartupTimeout returns StartupTimeoutMS as a duration, or DefaultStartupTimeout.
func (d ServiceDescriptor) StartupTimeout() time.Duration {
	if d.StartupTimeoutMS.IsDefined() {
		return time.Duration(d.StartupTimeoutMS.IntValue()) * time.Millisecond
	}
	return DefaultStartupTimeout
}

// EffectiveHarnessHost returns HarnessHost, or DefaultHarnessHost if it is empty.
func (d ServiceDescriptor) EffectiveHarnessHost() string {
	if d.HarnessHost != "" {
		return d.HarnessHost
	}
	return DefaultHarnessHost
}

// Environ returns Env as a list of KEY=VALUE strings in a stable order.
func (d ServiceDescriptor) Environ() []string {
	ret := make([]string, 0, len(d.Env))
	for k, v := range d.Env {
		ret = append(ret, k+"="+v)
	}
	sort.Strings(ret)
	return ret
}

// Validate checks that the descriptor can be used to build a harness.
func (d ServiceDescriptor) Validate() error {
	if d.URL == "" {
		return errors.New("test service URL is required")
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return fmt.Errorf("invalid test service URL %q: %w", d.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid test service URL %q: must be an absolute http or https URL", d.URL)
	}
	if d.HarnessPort < 0 || d.HarnessPort > 65535 {
		return fmt.Errorf("invalid harness port %d", d.HarnessPort)
	}
	if d.StartupTimeoutMS.IsDefined() && d.StartupTimeoutMS.IntValue() <= 0 {
		return fmt.Errorf("invalid startup timeout %dms", d.StartupTimeoutMS.IntValue())
	}
	if d.WorkDir != "" && d.Command == "" {
		return errors.New("workDir was specified without a command")
	}
	return nil
}

type descriptorFile struct {
	Name                 string            `yaml:"name"`
	URL                  string            `yaml:"url"`
	Command              string            `yaml:"command"`
	Env                  map[string]string `yaml:"env"`
	WorkDir              string            `yaml:"workDir"`
	HarnessHost          string            `yaml:"harnessHost"`
	HarnessPort          int               `yaml:"harnessPort"`
	StartupTimeoutMS     *int              `yaml:"startupTimeoutMs"`
	StopServiceAtEnd     bool              `yaml:"stopServiceAtEnd"`
	RequiredCapabilities []string          `yaml:"requiredCapabilities"`
}

// ParseServiceDescriptor decodes a descriptor from YAML and validates it.
func ParseServiceDescriptor(data []byte) (ServiceDescriptor, error) {
	var f descriptorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return ServiceDescriptor{}, fmt.Errorf("malformed service descriptor: %w", err)
	}
	d := ServiceDescriptor{
		Name:                 f.Name,
		URL:                  f.URL,
		Command:              f.Command,
		Env:                  f.Env,
		WorkDir:              f.WorkDir,
		HarnessHost:          f.HarnessHost,
		HarnessPort:          f.HarnessPort,
		StartupTimeoutMS:     ldvalue.NewOptionalIntFromPointer(f.StartupTimeoutMS),
		StopServiceAtEnd:     f.StopServiceAtEnd,
		RequiredCapabilities: f.RequiredCapabilities,
	}
	if err := d.Validate(); err != nil {
		return ServiceDescriptor{}, err
	}
	return d, nil
}

// LoadServiceDescriptor reads a descriptor from a YAML file.
func LoadServiceDescriptor(path string) (ServiceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceDescriptor{}, fmt.Errorf("cannot read service descriptor: %w", err)
	}
	d, err := ParseServiceDescriptor(data)
	if err != nil {
		return ServiceDescriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
