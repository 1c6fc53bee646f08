package resiliency

import (
	"errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
	"github.com/noderig/noderig/common"
)

func CreateFailSafePolicies(component string, fsCfg *common.FailsafeConfig) ([]failsafe.Policy[*common.CallResult], error) {
	var policies = []failsafe.Policy[*common.CallResult]{}

	if fsCfg == nil {
		return policies, nil
	}

	if fsCfg.Timeout != nil {
		p, err := createTimeoutPolicy(component, fsCfg.Timeout)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	if fsCfg.Retry != nil {
		policies = append(policies, CreateRetryPolicy(fsCfg.Retry))
	}

	return policies, nil
}

// CreateRetryPolicy builds a retry policy that fires only on transient
// endpoint errors. Rejections and harness failures pass through untouched.
func CreateRetryPolicy(cfg *common.RetryPolicyConfig) retrypolicy.RetryPolicy[*common.CallResult] {
	builder := retrypolicy.Builder[*common.CallResult]()

	if cfg.MaxAttempts > 0 {
		builder = builder.WithMaxAttempts(cfg.MaxAttempts)
	}
	if cfg.Delay > 0 {
		if cfg.BackoffMaxDelay > 0 {
			if cfg.BackoffFactor > 0 {
				builder = builder.WithBackoffFactor(cfg.Delay.Duration(), cfg.BackoffMaxDelay.Duration(), cfg.BackoffFactor)
			} else {
				builder = builder.WithBackoff(cfg.Delay.Duration(), cfg.BackoffMaxDelay.Duration())
			}
		} else {
			builder = builder.WithDelay(cfg.Delay.Duration())
		}
	}
	if cfg.Jitter > 0 {
		builder = builder.WithJitter(cfg.Jitter.Duration())
	}

	builder = builder.HandleIf(func(_ *common.CallResult, err error) bool {
		return common.HasErrorCode(err, common.ErrCodeEndpointTransient)
	})

	return builder.Build()
}

func createTimeoutPolicy(component string, cfg *common.TimeoutPolicyConfig) (failsafe.Policy[*common.CallResult], error) {
	if cfg.Duration <= 0 {
		return nil, common.NewErrInvalidConfig(errors.New("missing failsafe.timeout.duration"), component)
	}

	return timeout.Builder[*common.CallResult](cfg.Duration.Duration()).Build(), nil
}

// TranslateFailsafeError unwraps failsafe's own error types back into the
// harness taxonomy so callers only ever see harness errors.
func TranslateFailsafeError(execErr error, maxAttempts int) error {
	var retryExceededErr retrypolicy.ExceededError
	if errors.As(execErr, &retryExceededErr) {
		return common.NewErrRetryExhausted(retryExceededErr.LastError, maxAttempts)
	}

	if errors.Is(execErr, timeout.ErrExceeded) {
		return common.NewErrRetryExhausted(execErr, maxAttempts)
	}

	return execErr
}
