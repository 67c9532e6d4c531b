package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sessionOutcomesTotal, pollResultsTotal) }

var (
	sessionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "divination_session_outcomes_total",
			Help: "Client sessions that reached a terminal state, labeled by mode and state.",
		},
		[]string{"mode", "state"},
	)

	pollResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "divination_poll_results_total",
			Help: "Status polls issued by client sessions, labeled by result.",
		},
		[]string{"result"}, // 'ok', 'failed', 'skipped', 'discarded'
	)
)

func IncSessionOutcome(mode, state string) {
	sessionOutcomesTotal.WithLabelValues(norm(mode), norm(state)).Inc()
}

func IncPollResult(result string) {
	pollResultsTotal.WithLabelValues(norm(result)).Inc()
}
