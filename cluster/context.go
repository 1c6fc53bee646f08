package cluster

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/noderig/noderig/common"
	"github.com/noderig/noderig/readiness"
	"github.com/noderig/noderig/supervisor"
	"github.com/rs/zerolog"
)

// Controller is the injected process-control surface of the cluster manager
// that owns the long-running nodes (supervisord or equivalent). The harness
// only ever stops and starts named tasks through it.
type Controller interface {
	Stop(ctx context.Context, task string) error
	Start(ctx context.Context, task string) error
}

// ExecController drives a supervisorctl-compatible binary against a tasks
// file.
type ExecController struct {
	Binary    string
	TasksFile string
}

func (c *ExecController) run(ctx context.Context, action, task string) error {
	binary := c.Binary
	if binary == "" {
		binary = "supervisorctl"
	}
	cmd := exec.CommandContext(ctx, binary, "-c", c.TasksFile, action, task)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s failed: %w: %s", action, task, err, out)
	}
	return nil
}

func (c *ExecController) Stop(ctx context.Context, task string) error {
	return c.run(ctx, "stop", task)
}

func (c *ExecController) Start(ctx context.Context, task string) error {
	return c.run(ctx, "start", task)
}

// Context carries everything a scenario needs to address one running
// cluster: where it lives, how its nodes are named, and who controls them.
// Scenarios receive it explicitly; the one mutating shared node state (a
// stop/restart) must be the only scenario touching that node.
type Context struct {
	BaseDir   string
	ChainID   string
	Binary    string
	FirstPort int
	// PortStride separates consecutive nodes' base ports.
	PortStride int
	Controller Controller

	logger *zerolog.Logger
}

func NewContext(logger *zerolog.Logger, baseDir, chainID, binary string, firstPort, portStride int, controller Controller) *Context {
	return &Context{
		BaseDir:    baseDir,
		ChainID:    chainID,
		Binary:     binary,
		FirstPort:  firstPort,
		PortStride: portStride,
		Controller: controller,
		logger:     logger,
	}
}

func (c *Context) BasePort(node int) int {
	return c.FirstPort + node*c.PortStride
}

func (c *Context) NodeHome(node int) string {
	return filepath.Join(c.BaseDir, fmt.Sprintf("node%d", node))
}

func (c *Context) NodeLog(node int) string {
	return filepath.Join(c.BaseDir, fmt.Sprintf("node%d.log", node))
}

func (c *Context) TaskName(node int) string {
	return fmt.Sprintf("%s-node%d", c.ChainID, node)
}

// GrpcOnlyNode is a node relaunched outside the cluster manager in
// grpc-only mode, with the poll targets a caller must wait on before
// querying it.
type GrpcOnlyNode struct {
	Handle   *supervisor.ServiceHandle
	GRPC     readiness.PollTarget
	API      readiness.PollTarget
	GRPCPort int
	APIPort  int
}

// RestartGrpcOnly stops the managed node and relaunches it directly in
// grpc-only mode over the existing chain state, appending to the node's
// log. The caller owns the returned handle and must terminate it (use
// supervisor.Run for the guaranteed-release form).
func (c *Context) RestartGrpcOnly(ctx context.Context, sup *supervisor.Supervisor, node int, readyCfg *common.ReadinessConfig, terminateTimeout time.Duration) (*GrpcOnlyNode, error) {
	c.logger.Info().
		Str("task", c.TaskName(node)).
		Msg("stopping managed node before grpc-only relaunch")
	if err := c.Controller.Stop(ctx, c.TaskName(node)); err != nil {
		return nil, fmt.Errorf("failed to stop managed node: %w", err)
	}

	handle, err := sup.Launch(ctx, supervisor.LaunchSpec{
		Binary:           c.Binary,
		Args:             []string{"start", "--grpc-only", "--home", c.NodeHome(node)},
		LogFile:          c.NodeLog(node),
		TerminateTimeout: terminateTimeout,
	})
	if err != nil {
		return nil, err
	}

	basePort := c.BasePort(node)
	return &GrpcOnlyNode{
		Handle:   handle,
		GRPC:     readiness.NewPollTarget("localhost", GRPCPort(basePort), readyCfg),
		API:      readiness.NewPollTarget("localhost", APIPort(basePort), readyCfg),
		GRPCPort: GRPCPort(basePort),
		APIPort:  APIPort(basePort),
	}, nil
}
