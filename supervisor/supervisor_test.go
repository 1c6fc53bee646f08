package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/noderig/noderig/common"
	"github.com/noderig/noderig/util"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	util.ConfigureTestLogger()
	m.Run()
}

func testSupervisor() *Supervisor {
	logger := log.Logger
	return NewSupervisor(&logger)
}

func TestLaunch(t *testing.T) {
	t.Run("RedirectsOutputToAppendModeLog", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "node1.log")
		require.NoError(t, os.WriteFile(logFile, []byte("previous run\n"), 0o644))

		sup := testSupervisor()
		handle, err := sup.Launch(context.Background(), LaunchSpec{
			Binary:  "sh",
			Args:    []string{"-c", "echo started"},
			LogFile: logFile,
		})
		require.NoError(t, err)
		require.NoError(t, handle.waitExit())
		require.NoError(t, sup.Terminate(handle))

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "previous run")
		assert.Contains(t, string(content), "started")
	})

	t.Run("MissingBinary_FailsWithLaunchError", func(t *testing.T) {
		_, err := testSupervisor().Launch(context.Background(), LaunchSpec{
			Binary: "definitely-not-a-real-binary-xyz",
		})
		assert.True(t, common.HasErrorCode(err, common.ErrCodeProcessLaunchFailed))
	})
}

func TestTerminate(t *testing.T) {
	t.Run("GracefulStop", func(t *testing.T) {
		sup := testSupervisor()
		handle, err := sup.Launch(context.Background(), LaunchSpec{
			Binary: "sleep",
			Args:   []string{"60"},
		})
		require.NoError(t, err)

		start := time.Now()
		require.NoError(t, sup.Terminate(handle))
		assert.Less(t, time.Since(start), 5*time.Second)

		// exit status observed
		assert.Error(t, handle.waitExit()) // killed by signal
	})

	t.Run("IgnoredSignal_EscalatesToKill", func(t *testing.T) {
		sup := testSupervisor()
		handle, err := sup.Launch(context.Background(), LaunchSpec{
			Binary:           "sh",
			Args:             []string{"-c", `trap "" TERM; sleep 60`},
			TerminateTimeout: 300 * time.Millisecond,
		})
		require.NoError(t, err)

		// give the shell time to install the trap
		time.Sleep(200 * time.Millisecond)

		err = sup.Terminate(handle)
		assert.True(t, common.HasErrorCode(err, common.ErrCodeProcessTerminateTimeout))
	})

	t.Run("AlreadyExited", func(t *testing.T) {
		sup := testSupervisor()
		handle, err := sup.Launch(context.Background(), LaunchSpec{
			Binary: "true",
		})
		require.NoError(t, err)
		require.NoError(t, handle.waitExit())

		assert.NoError(t, sup.Terminate(handle))
	})

	t.Run("Idempotent", func(t *testing.T) {
		sup := testSupervisor()
		handle, err := sup.Launch(context.Background(), LaunchSpec{
			Binary: "sleep",
			Args:   []string{"60"},
		})
		require.NoError(t, err)

		require.NoError(t, sup.Terminate(handle))
		assert.NoError(t, sup.Terminate(handle))
	})

	t.Run("NilHandle", func(t *testing.T) {
		assert.NoError(t, testSupervisor().Terminate(nil))
	})
}

func TestRun(t *testing.T) {
	t.Run("TerminatesEvenWhenScenarioFails", func(t *testing.T) {
		sup := testSupervisor()
		scenarioErr := errors.New("query phase blew up")

		var captured *ServiceHandle
		err := sup.Run(context.Background(), LaunchSpec{
			Binary: "sleep",
			Args:   []string{"60"},
		}, func(ctx context.Context, handle *ServiceHandle) error {
			captured = handle
			return scenarioErr
		})

		assert.ErrorIs(t, err, scenarioErr)
		// the process exit status must have been observed before Run returned
		require.NotNil(t, captured)
		exitCh := make(chan error, 1)
		go func() { exitCh <- captured.waitExit() }()
		select {
		case <-exitCh:
		case <-time.After(time.Second):
			t.Fatal("process was leaked by Run")
		}
	})

	t.Run("TerminatesOnPanic", func(t *testing.T) {
		sup := testSupervisor()

		err := sup.Run(context.Background(), LaunchSpec{
			Binary: "sleep",
			Args:   []string{"60"},
		}, func(ctx context.Context, handle *ServiceHandle) error {
			panic("scenario panicked hard")
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "scenario panicked hard")
	})

	t.Run("ScenarioErrorWinsOverTerminationError", func(t *testing.T) {
		sup := testSupervisor()
		scenarioErr := errors.New("assertion failed")

		err := sup.Run(context.Background(), LaunchSpec{
			Binary:           "sh",
			Args:             []string{"-c", `trap "" TERM; sleep 60`},
			TerminateTimeout: 200 * time.Millisecond,
		}, func(ctx context.Context, handle *ServiceHandle) error {
			time.Sleep(200 * time.Millisecond)
			return scenarioErr
		})

		assert.ErrorIs(t, err, scenarioErr)
	})

	t.Run("LaunchFailurePropagates", func(t *testing.T) {
		sup := testSupervisor()
		err := sup.Run(context.Background(), LaunchSpec{
			Binary: "definitely-not-a-real-binary-xyz",
		}, func(ctx context.Context, handle *ServiceHandle) error {
			t.Fatal("scenario must not run when launch fails")
			return nil
		})
		assert.True(t, common.HasErrorCode(err, common.ErrCodeProcessLaunchFailed))
	})
}
