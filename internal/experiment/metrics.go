package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultApplied = "applied"
	resultIgnored = "ignored"
	resultError   = "error"
)

var (
	// mutationsTotal counts Mutation API calls by operation and outcome
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "experiment_mutations_total",
		Help: "Experiment state mutations by operation and result",
	}, []string{"operation", "result"})
)

func observeMutation(operation string, changed bool, err error) {
	result := resultIgnored
	switch {
	case err != nil:
		result = resultError
	case changed:
		result = resultApplied
	}
	mutationsTotal.WithLabelValues(operation, result).Inc()
}
