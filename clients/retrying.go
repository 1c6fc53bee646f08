package clients

import (
	"context"

	"github.com/failsafe-go/failsafe-go"
	"github.com/noderig/noderig/common"
	"github.com/noderig/noderig/resiliency"
	"github.com/noderig/noderig/telemetry"
	"github.com/rs/zerolog"
)

// QuerySender is the single-shot query surface RetryingClient wraps.
// GatewayClient implements it; tests inject fakes.
type QuerySender interface {
	SendQuery(ctx context.Context, query common.CallQuery) (*common.CallResult, error)
}

// Accept decides whether a successfully classified result satisfies the
// caller. A nil Accept accepts every success.
type Accept func(result *common.CallResult) bool

// RetryingClient issues a query, classifies the raw response, and retries
// transient outcomes with bounded attempts and fixed (or backoff) delay.
// Rejections return immediately: for the caller they are the authoritative
// result, often the very thing a scenario asserts on.
type RetryingClient struct {
	sender     QuerySender
	classifier common.Classifier
	retryCfg   *common.RetryPolicyConfig
	executor   failsafe.Executor[*common.CallResult]
	logger     *zerolog.Logger
}

func NewRetryingClient(logger *zerolog.Logger, sender QuerySender, classifier common.Classifier, retryCfg *common.RetryPolicyConfig) *RetryingClient {
	if retryCfg == nil {
		retryCfg = &common.RetryPolicyConfig{
			MaxAttempts: common.DefaultRetryMaxAttempts,
			Delay:       common.Duration(common.DefaultRetryDelay),
		}
	}
	policy := resiliency.CreateRetryPolicy(retryCfg)
	return &RetryingClient{
		sender:     sender,
		classifier: classifier,
		retryCfg:   retryCfg,
		executor:   failsafe.NewExecutor[*common.CallResult](policy),
		logger:     logger,
	}
}

// Call runs the state machine for one logical query:
// pending -> success | rejected | transient (retry) | exhausted.
func (c *RetryingClient) Call(ctx context.Context, query common.CallQuery, accept Accept) (*common.CallResult, error) {
	var rejectedResult *common.CallResult
	result, execErr := c.executor.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*common.CallResult]) (*common.CallResult, error) {
		result, err := c.sender.SendQuery(ctx, query)
		if err != nil {
			// Transport-level failure: not retried here, the readiness
			// poller is responsible for the port being serviceable.
			return nil, err
		}

		outcome := c.classifier.Classify(result)
		telemetry.MetricGatewayCallTotal.WithLabelValues(outcome.String()).Inc()
		c.logger.Debug().
			Int("attempt", exec.Attempts()).
			Str("outcome", outcome.String()).
			Int("code", result.Code).
			Msg("classified gateway response")

		switch outcome {
		case common.OutcomeTransient:
			return nil, common.NewErrEndpointTransient(result.Message)
		case common.OutcomeRejected:
			rejectedResult = result
			return result, common.NewErrEndpointRejected(result.Code, result.Message)
		default:
			if accept != nil && !accept(result) {
				return nil, common.NewErrEndpointTransient("response did not satisfy acceptance predicate")
			}
			return result, nil
		}
	})

	if execErr != nil {
		translated := resiliency.TranslateFailsafeError(execErr, c.retryCfg.MaxAttempts)
		if common.HasErrorCode(translated, common.ErrCodeRetryExhausted) {
			telemetry.MetricRetryExhaustedTotal.WithLabelValues("gateway").Inc()
		}
		if common.HasErrorCode(translated, common.ErrCodeEndpointRejected) {
			// Surface the rejection together with the raw result so the
			// caller can assert on code and message.
			if result == nil {
				result = rejectedResult
			}
			return result, translated
		}
		return nil, translated
	}

	return result, nil
}
