package test

import (
	"context"
	"testing"
	"time"

	"github.com/noderig/noderig/clients"
	"github.com/noderig/noderig/common"
	"github.com/noderig/noderig/readiness"
	"github.com/noderig/noderig/supervisor"
	"github.com/noderig/noderig/util"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	util.ConfigureTestLogger()
	m.Run()
}

func startGateway(t *testing.T, gw *FakeGateway) *FakeGateway {
	t.Helper()
	require.NoError(t, gw.Start())
	t.Cleanup(func() {
		_ = gw.Stop()
	})
	return gw
}

func retryCfg(maxAttempts int) *common.RetryPolicyConfig {
	return &common.RetryPolicyConfig{
		MaxAttempts: maxAttempts,
		Delay:       common.Duration(20 * time.Millisecond),
	}
}

func newCallClient(t *testing.T, gw *FakeGateway, maxAttempts int) *clients.RetryingClient {
	t.Helper()
	logger := log.Logger
	gateway, err := clients.NewGatewayClient(&logger, "localhost", gw.Port, gw.CallPath)
	require.NoError(t, err)
	return clients.NewRetryingClient(&logger, gateway, common.NewGatewayClassifier(gw.GrpcPort), retryCfg(maxAttempts))
}

func callMsg() common.CallQuery {
	return common.CallQuery{Args: map[string]interface{}{
		"to":   "0x68542BD12B41F5D51D6282Ec7D91D7d0D78E4503",
		"data": "0x9a8a0592",
	}}
}

// Normal mode: the query works without an explicit chain id and ret decodes
// big-endian to one of the known chain identifiers.
func TestNormalMode_CallWithoutChainID(t *testing.T) {
	gw := startGateway(t, &FakeGateway{ChainIDValue: 9002})
	client := newCallClient(t, gw, 3)

	result, err := client.Call(context.Background(), callMsg(), func(r *common.CallResult) bool {
		return r.Ret != ""
	})
	require.NoError(t, err)

	v, err := result.RetBigInt()
	require.NoError(t, err)
	assert.Contains(t, []int64{9000, 9002}, v.Int64())
}

// Restricted mode straight after a restart: the gateway's port is open but
// its backing grpc server still refuses connections for a while, then the
// query resolves to the expected rejection because no proposer address was
// supplied.
func TestGrpcOnlyMode_RecoveringBackendThenMissingProposer(t *testing.T) {
	gw := startGateway(t, &FakeGateway{
		GrpcOnly:     true,
		GrpcPort:     26419,
		RecoverAfter: 3,
		ChainIDValue: 9002,
	})

	// the port accepts connections before the backend can serve
	logger := log.Logger
	poller := readiness.NewPoller(&logger)
	target := readiness.PollTarget{Host: "localhost", Port: gw.Port, Timeout: 5 * time.Second, Interval: 100 * time.Millisecond}
	require.NoError(t, poller.WaitForPort(context.Background(), target))

	client := newCallClient(t, gw, 10)
	result, err := client.Call(context.Background(), callMsg().WithChainID("9002"), nil)

	assert.True(t, common.HasErrorCode(err, common.ErrCodeEndpointRejected))
	require.NotNil(t, result)
	assert.NotEqual(t, 0, result.Code)
	assert.Contains(t, result.Message, "validator does not exist")
	// transient refusals were absorbed before the definitive answer
	assert.Equal(t, 4, gw.RequestsHandled())
}

// A cosmos-style string chain id is not a decimal and must be rejected with
// the parser's message once a proposer address is present.
func TestGrpcOnlyMode_NonNumericChainID(t *testing.T) {
	gw := startGateway(t, &FakeGateway{
		GrpcOnly:     true,
		GrpcPort:     26419,
		ChainIDValue: 9002,
	})

	client := newCallClient(t, gw, 3)
	query := callMsg().
		WithChainID("evmos_9002-1").
		WithProposerAddress([]byte{0xde, 0xad, 0xbe, 0xef})

	result, err := client.Call(context.Background(), query, nil)

	assert.True(t, common.HasErrorCode(err, common.ErrCodeEndpointRejected))
	require.NotNil(t, result)
	assert.Contains(t, result.Message, "invalid syntax")
	assert.Equal(t, 1, gw.RequestsHandled())
}

func TestGrpcOnlyMode_ProposerSuppliedSucceeds(t *testing.T) {
	gw := startGateway(t, &FakeGateway{
		GrpcOnly:     true,
		GrpcPort:     26419,
		ChainIDValue: 9002,
	})

	client := newCallClient(t, gw, 3)
	query := callMsg().
		WithChainID("9002").
		WithProposerAddress([]byte{0xde, 0xad, 0xbe, 0xef})

	result, err := client.Call(context.Background(), query, nil)
	require.NoError(t, err)

	v, err := result.RetBigInt()
	require.NoError(t, err)
	assert.Equal(t, int64(9002), v.Int64())
}

func TestBackendNeverRecovers_RetriesExhaust(t *testing.T) {
	gw := startGateway(t, &FakeGateway{
		GrpcOnly:     true,
		GrpcPort:     26419,
		RecoverAfter: 1000, // effectively never within this test
		ChainIDValue: 9002,
	})

	client := newCallClient(t, gw, 4)
	_, err := client.Call(context.Background(), callMsg().WithChainID("9002"), nil)

	assert.True(t, common.HasErrorCode(err, common.ErrCodeRetryExhausted))
	assert.Equal(t, 4, gw.RequestsHandled())
}

// Full lifecycle shape of the grpc-only scenario: a supervised process is
// torn down even though the query phase against the gateway ends in the
// expected rejection.
func TestScenario_TeardownRunsAfterQueryPhase(t *testing.T) {
	gw := startGateway(t, &FakeGateway{
		GrpcOnly:     true,
		GrpcPort:     26419,
		ChainIDValue: 9002,
	})

	logger := log.Logger
	sup := supervisor.NewSupervisor(&logger)

	err := sup.Run(context.Background(), supervisor.LaunchSpec{
		Binary: "sleep",
		Args:   []string{"60"},
	}, func(ctx context.Context, _ *supervisor.ServiceHandle) error {
		client := newCallClient(t, gw, 3)
		result, err := client.Call(ctx, callMsg().WithChainID("9002"), nil)
		if !common.HasErrorCode(err, common.ErrCodeEndpointRejected) {
			return err
		}
		assert.Contains(t, result.Message, "validator does not exist")
		return nil
	})
	require.NoError(t, err)
}
