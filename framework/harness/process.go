package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/launchdarkly/service-testkit/framework"
	"github.com/launchdarkly/service-testkit/servicedef"

	"github.com/mattn/go-shellwords"
)

const processExitTimeout = time.Second * 5

type serviceProcess struct {
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
	logger  framework.Logger
}

func startServiceProcess(
	descriptor servicedef.ServiceDescriptor,
	output io.Writer,
	logger framework.Logger,
) (*serviceProcess, error) {
	args, err := shellwords.Parse(descriptor.Command)
	if err != nil {
		return nil, fmt.Errorf("invalid test service command %q: %w", descriptor.Command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("invalid test service command %q: no program name", descriptor.Command)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), descriptor.Environ()...)
	cmd.Dir = descriptor.WorkDir
	cmd.Stdout = output
	cmd.Stderr = output

	logger.Printf("Launching test service: %s", descriptor.Command)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not launch test service: %w", err)
	}
	p := &serviceProcess{cmd: cmd, exited: make(chan struct{}), logger: logger}
	go func() {
		p.waitErr = cmd.Wait()
		logger.Printf("Test service process %d exited: %v", cmd.Process.Pid, p.waitErr)
		close(p.exited)
	}()
	return p, nil
}

// stop waits for the process to exit on its own if it was asked to, and kills it otherwise.
func (p *serviceProcess) stop(expectExit bool) error {
	if expectExit {
		select {
		case <-p.exited:
			return nil
		case <-time.After(processExitTimeout):
			p.logger.Printf("Test service did not exit within %s", processExitTimeout)
		}
	}
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("could not kill test service process: %w", err)
	}
	<-p.exited
	return nil
}
