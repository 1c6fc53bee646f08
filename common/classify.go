package common

import (
	"fmt"
	"strings"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Classifier decides whether a gateway response is a success, a transient
// condition worth retrying, or a definitive rejection.
type Classifier interface {
	Classify(result *CallResult) Outcome
}

// ClassifierFunc is an adapter to allow normal functions to be used as
// Classifier implementations.
type ClassifierFunc func(result *CallResult) Outcome

func (f ClassifierFunc) Classify(result *CallResult) Outcome {
	return f(result)
}

// GatewayClassifier maps the gateway's string-shaped errors to outcomes.
// The remote service does not expose structured error kinds, so the
// matching is on known message substrings; keeping the rules here keeps
// them testable in isolation instead of inlined at call sites.
type GatewayClassifier struct {
	// transientPatterns mark messages from an endpoint that is reachable
	// but still recovering. The canonical one is the gateway reporting that
	// its own backing grpc server refuses connections.
	transientPatterns []string
}

// NewGatewayClassifier builds the classifier for a gateway whose backing
// grpc server listens on grpcPort. Extra patterns extend the transient set.
func NewGatewayClassifier(grpcPort int, extraTransient ...string) *GatewayClassifier {
	patterns := []string{
		fmt.Sprintf("%d: connect: connection refused", grpcPort),
	}
	patterns = append(patterns, extraTransient...)
	return &GatewayClassifier{transientPatterns: patterns}
}

func (c *GatewayClassifier) Classify(result *CallResult) Outcome {
	for _, p := range c.transientPatterns {
		if strings.Contains(result.Message, p) {
			return OutcomeTransient
		}
	}
	if result.Code == 0 {
		return OutcomeSuccess
	}
	return OutcomeRejected
}
