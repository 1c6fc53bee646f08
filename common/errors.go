package common

import (
	"errors"
	"fmt"
)

//
// Base Types
//

type BaseError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"cause"`
	Details map[string]interface{} `json:"details"`
}

func (e *BaseError) Unwrap() error {
	return e.Cause
}

func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BaseError) CodeChain() string {
	if e.Cause != nil {
		if be, ok := e.Cause.(interface{ CodeChain() string }); ok {
			return fmt.Sprintf("%s <- %s", e.Code, be.CodeChain())
		}
	}

	return e.Code
}

func (e *BaseError) HasCode(code string) bool {
	if e.Code == code {
		return true
	}
	if e.Cause != nil {
		if be, ok := e.Cause.(interface{ HasCode(string) bool }); ok {
			return be.HasCode(code)
		}
	}
	return false
}

// HasErrorCode walks the cause chain looking for any of the given codes.
func HasErrorCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	if be, ok := err.(interface{ HasCode(string) bool }); ok {
		for _, code := range codes {
			if be.HasCode(code) {
				return true
			}
		}
	}
	if uw := errors.Unwrap(err); uw != nil {
		return HasErrorCode(uw, codes...)
	}
	return false
}

const (
	ErrCodeProcessLaunchFailed     = "ErrProcessLaunchFailed"
	ErrCodeProcessTerminateTimeout = "ErrProcessTerminateTimeout"
	ErrCodeReadinessTimeout        = "ErrReadinessTimeout"
	ErrCodeEndpointTransient       = "ErrEndpointTransient"
	ErrCodeEndpointRejected        = "ErrEndpointRejected"
	ErrCodeRetryExhausted          = "ErrRetryExhausted"
	ErrCodeInvalidConfig           = "ErrInvalidConfig"
)

//
// Process Errors
//

type ErrProcessLaunchFailed struct{ BaseError }

func NewErrProcessLaunchFailed(cause error, binary string) error {
	return &ErrProcessLaunchFailed{
		BaseError{
			Code:    ErrCodeProcessLaunchFailed,
			Message: "failed to launch service process",
			Cause:   cause,
			Details: map[string]interface{}{
				"binary": binary,
			},
		},
	}
}

type ErrProcessTerminateTimeout struct{ BaseError }

func NewErrProcessTerminateTimeout(binary string, pid int) error {
	return &ErrProcessTerminateTimeout{
		BaseError{
			Code:    ErrCodeProcessTerminateTimeout,
			Message: "process did not exit after graceful stop, killed",
			Details: map[string]interface{}{
				"binary": binary,
				"pid":    pid,
			},
		},
	}
}

//
// Readiness Errors
//

type ErrReadinessTimeout struct{ BaseError }

func NewErrReadinessTimeout(host string, port int, attempts int) error {
	return &ErrReadinessTimeout{
		BaseError{
			Code:    ErrCodeReadinessTimeout,
			Message: "endpoint never accepted a connection within the readiness budget",
			Details: map[string]interface{}{
				"host":     host,
				"port":     port,
				"attempts": attempts,
			},
		},
	}
}

//
// Endpoint Errors
//

// ErrEndpointTransient marks a response from a reachable endpoint that is
// still recovering (e.g. the gateway is up but its backing grpc server is
// not serving yet). It is absorbed by the retry layer and never surfaced
// unless retries exhaust.
type ErrEndpointTransient struct{ BaseError }

func NewErrEndpointTransient(message string) error {
	return &ErrEndpointTransient{
		BaseError{
			Code:    ErrCodeEndpointTransient,
			Message: message,
		},
	}
}

// ErrEndpointRejected is a definitive application-level rejection. It is
// never retried: in many scenarios it is the expected outcome under test
// (e.g. "validator does not exist"), so callers inspect it rather than
// treating it as a harness failure.
type ErrEndpointRejected struct{ BaseError }

func NewErrEndpointRejected(appCode int, message string) error {
	return &ErrEndpointRejected{
		BaseError{
			Code:    ErrCodeEndpointRejected,
			Message: message,
			Details: map[string]interface{}{
				"appCode": appCode,
			},
		},
	}
}

func (e *ErrEndpointRejected) AppCode() int {
	if c, ok := e.Details["appCode"].(int); ok {
		return c
	}
	return 0
}

type ErrRetryExhausted struct{ BaseError }

func NewErrRetryExhausted(cause error, attempts int) error {
	return &ErrRetryExhausted{
		BaseError{
			Code:    ErrCodeRetryExhausted,
			Message: "transient condition never cleared within the attempt budget",
			Cause:   cause,
			Details: map[string]interface{}{
				"attempts": attempts,
			},
		},
	}
}

type ErrInvalidConfig struct{ BaseError }

func NewErrInvalidConfig(cause error, path string) error {
	return &ErrInvalidConfig{
		BaseError{
			Code:    ErrCodeInvalidConfig,
			Message: "invalid configuration",
			Cause:   cause,
			Details: map[string]interface{}{
				"path": path,
			},
		},
	}
}
