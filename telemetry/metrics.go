package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricProcessLaunchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noderig",
		Name:      "process_launch_total",
		Help:      "Total number of supervised process launches.",
	}, []string{"binary", "result"})

	MetricProcessTerminationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noderig",
		Name:      "process_termination_total",
		Help:      "Total number of supervised process terminations.",
	}, []string{"binary", "mode"})

	MetricReadinessAttemptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noderig",
		Name:      "readiness_attempt_total",
		Help:      "Total number of readiness connection attempts.",
	}, []string{"host", "port"})

	MetricReadinessTimeoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noderig",
		Name:      "readiness_timeout_total",
		Help:      "Total number of readiness budgets exhausted without the port opening.",
	}, []string{"host", "port"})

	MetricGatewayCallTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noderig",
		Name:      "gateway_call_total",
		Help:      "Total number of gateway calls by classified outcome.",
	}, []string{"outcome"})

	MetricRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noderig",
		Name:      "retry_exhausted_total",
		Help:      "Total number of calls whose transient condition never cleared.",
	}, []string{"component"})
)
