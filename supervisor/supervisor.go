package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/noderig/noderig/common"
	"github.com/noderig/noderig/telemetry"
	"github.com/rs/zerolog"
)

// LaunchSpec describes one external service process to supervise.
type LaunchSpec struct {
	Binary  string
	Args    []string
	Workdir string
	// LogFile receives the process's combined stdout/stderr, opened in
	// append mode so restarts of the same node keep one log.
	LogFile string
	// TerminateTimeout bounds the graceful-stop wait before escalating to
	// SIGKILL. Zero means common.DefaultTerminateTimeout.
	TerminateTimeout time.Duration
}

// ServiceHandle owns a running process and its log sink. Exactly one
// supervisor owns a handle; it must not outlive the scope that created it.
type ServiceHandle struct {
	Spec LaunchSpec

	cmd      *exec.Cmd
	logSink  *os.File
	done     chan error
	waitOnce sync.Once
	exitErr  error
}

// waitExit blocks until the process exit status has been observed. Safe to
// call more than once.
func (h *ServiceHandle) waitExit() error {
	h.waitOnce.Do(func() {
		h.exitErr = <-h.done
	})
	return h.exitErr
}

// Pid returns the process id, for log correlation only.
func (h *ServiceHandle) Pid() int {
	return h.cmd.Process.Pid
}

type Supervisor struct {
	logger *zerolog.Logger
}

func NewSupervisor(logger *zerolog.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

// Launch starts the process with stdout and stderr redirected to the spec's
// log file. A start failure closes the sink and returns
// ErrProcessLaunchFailed.
func (s *Supervisor) Launch(ctx context.Context, spec LaunchSpec) (*ServiceHandle, error) {
	var sink *os.File
	if spec.LogFile != "" {
		f, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			telemetry.MetricProcessLaunchTotal.WithLabelValues(spec.Binary, "error").Inc()
			return nil, common.NewErrProcessLaunchFailed(err, spec.Binary)
		}
		sink = f
	}

	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.Dir = spec.Workdir
	if sink != nil {
		cmd.Stdout = sink
		cmd.Stderr = sink
	}

	if err := cmd.Start(); err != nil {
		if sink != nil {
			_ = sink.Close()
		}
		telemetry.MetricProcessLaunchTotal.WithLabelValues(spec.Binary, "error").Inc()
		return nil, common.NewErrProcessLaunchFailed(err, spec.Binary)
	}

	handle := &ServiceHandle{
		Spec:    spec,
		cmd:     cmd,
		logSink: sink,
		done:    make(chan error, 1),
	}
	go func() {
		handle.done <- cmd.Wait()
	}()

	s.logger.Info().
		Str("binary", spec.Binary).
		Strs("args", spec.Args).
		Int("pid", handle.Pid()).
		Msg("launched service process")
	telemetry.MetricProcessLaunchTotal.WithLabelValues(spec.Binary, "ok").Inc()

	return handle, nil
}

// Terminate sends a graceful stop signal and waits for the process to exit.
// If it does not exit within the spec's terminate timeout it is killed and
// ErrProcessTerminateTimeout is returned once the kill is confirmed. Safe to
// call on an already-exited process.
func (s *Supervisor) Terminate(handle *ServiceHandle) error {
	if handle == nil {
		return nil
	}

	defer func() {
		if handle.logSink != nil {
			_ = handle.logSink.Close()
			handle.logSink = nil
		}
	}()

	if err := handle.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone: observe the exit status and return.
		_ = handle.waitExit()
		return nil
	}

	timeout := handle.Spec.TerminateTimeout
	if timeout <= 0 {
		timeout = common.DefaultTerminateTimeout
	}

	exited := make(chan error, 1)
	go func() { exited <- handle.waitExit() }()

	select {
	case err := <-exited:
		s.logger.Info().
			Str("binary", handle.Spec.Binary).
			Int("pid", handle.Pid()).
			AnErr("exitErr", err).
			Msg("service process exited after graceful stop")
		telemetry.MetricProcessTerminationTotal.WithLabelValues(handle.Spec.Binary, "graceful").Inc()
		return nil
	case <-time.After(timeout):
		s.logger.Warn().
			Str("binary", handle.Spec.Binary).
			Int("pid", handle.Pid()).
			Str("timeout", timeout.String()).
			Msg("service process ignored graceful stop, killing")
		_ = handle.cmd.Process.Kill()
		_ = handle.waitExit()
		telemetry.MetricProcessTerminationTotal.WithLabelValues(handle.Spec.Binary, "killed").Inc()
		return common.NewErrProcessTerminateTimeout(handle.Spec.Binary, handle.Pid())
	}
}

// Run launches the process, invokes fn with the live handle, and guarantees
// termination before returning, whatever fn does. fn's error wins over a
// termination error: a killed-on-timeout process after a failing scenario
// should surface the scenario's failure.
func (s *Supervisor) Run(ctx context.Context, spec LaunchSpec, fn func(ctx context.Context, handle *ServiceHandle) error) error {
	handle, err := s.Launch(ctx, spec)
	if err != nil {
		return err
	}

	fnErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &common.BaseError{
					Code:    "ErrScenarioPanic",
					Message: "scenario panicked: " + panicString(r),
				}
			}
		}()
		return fn(ctx, handle)
	}()

	termErr := s.Terminate(handle)
	if fnErr != nil {
		return fnErr
	}
	return termErr
}

func panicString(r interface{}) string {
	switch v := r.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
