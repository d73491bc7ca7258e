package cloudsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	phaseInitial   = "initial"
	phaseDebounced = "debounced"
)

var (
	pushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "experiment_sync_pushes_total",
		Help: "Pushes of local experiment state to the remote document service",
	}, []string{"phase", "result"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "experiment_sync_sessions_active",
		Help: "Reconciliation sessions currently listening for local changes",
	})
)

func observePush(phase string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	pushesTotal.WithLabelValues(phase, result).Inc()
}
