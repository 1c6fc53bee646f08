package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/noderig/noderig/clients"
	"github.com/noderig/noderig/cluster"
	"github.com/noderig/noderig/common"
	"github.com/noderig/noderig/readiness"
	"github.com/noderig/noderig/supervisor"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "noderig",
		Usage: "supervise a service process, wait for its ports, and probe its query gateway",
		Commands: []*cli.Command{
			{
				Name:      "probe",
				Usage:     "run one launch/poll/query/teardown cycle from a config file",
				ArgsUsage: "<config.yaml>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					configPath := cmd.Args().First()
					if configPath == "" {
						configPath = "./noderig.yaml"
					}
					return runProbe(ctx, afero.NewOsFs(), configPath)
				},
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					_, err := os.Stdout.WriteString(version + "\n")
					return err
				},
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("noderig failed")
		os.Exit(1)
	}
}

func runProbe(ctx context.Context, fs afero.Fs, configPath string) error {
	cfg, err := common.LoadConfig(fs, configPath)
	if err != nil {
		return err
	}
	if cfg.Service == nil || cfg.Gateway == nil {
		return common.NewErrInvalidConfig(errors.New("probe requires both service and gateway sections"), configPath)
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		log.Warn().Msgf("invalid log level '%s', defaulting to 'info': %s", cfg.LogLevel, err)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(level)
	}

	logger := log.With().Str("component", "probe").Logger()
	sup := supervisor.NewSupervisor(&logger)
	poller := readiness.NewPoller(&logger)

	grpcPort := cluster.GRPCPort(cfg.Gateway.BasePort)
	apiPort := cluster.APIPort(cfg.Gateway.BasePort)

	spec := supervisor.LaunchSpec{
		Binary:           cfg.Service.Binary,
		Args:             cfg.Service.Args,
		Workdir:          cfg.Service.Home,
		LogFile:          cfg.Service.LogFile,
		TerminateTimeout: cfg.Service.TerminateTimeout.Duration(),
	}

	return sup.Run(ctx, spec, func(ctx context.Context, _ *supervisor.ServiceHandle) error {
		grpcTarget := readiness.NewPollTarget(cfg.Gateway.Host, grpcPort, cfg.Readiness)
		apiTarget := readiness.NewPollTarget(cfg.Gateway.Host, apiPort, cfg.Readiness)
		if err := poller.WaitForPort(ctx, grpcTarget); err != nil {
			return err
		}
		if err := poller.WaitForPort(ctx, apiTarget); err != nil {
			return err
		}

		gateway, err := clients.NewGatewayClient(&logger, cfg.Gateway.Host, apiPort, cfg.Gateway.CallPath)
		if err != nil {
			return err
		}
		client := clients.NewRetryingClient(&logger, gateway, common.NewGatewayClassifier(grpcPort), cfg.Failsafe.Retry)

		result, err := client.Call(ctx, common.CallQuery{Args: map[string]interface{}{}}, nil)
		if err != nil {
			if common.HasErrorCode(err, common.ErrCodeEndpointRejected) {
				logger.Info().Err(err).Msg("gateway answered with an application rejection")
				return nil
			}
			return err
		}

		logger.Info().Int("code", result.Code).Str("ret", result.Ret).Msg("gateway answered successfully")
		return nil
	})
}
