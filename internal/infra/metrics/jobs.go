package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsSubmittedTotal, jobsFinishedTotal, jobsCancelledTotal, jobsReapedTotal, rateLimitedTotal) }

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "divination_jobs_submitted_total",
			Help: "Divination jobs accepted by the backend, labeled by mode.",
		},
		[]string{"mode"},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "divination_jobs_finished_total",
			Help: "Divination jobs processed by workers, labeled by mode and status.",
		},
		[]string{"mode", "status"}, // 'completed', 'error', 'discarded'
	)

	jobsCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "divination_jobs_cancelled_total",
			Help: "Jobs cancelled on user request, labeled by the status they were cancelled from.",
		},
		[]string{"from"},
	)

	jobsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "divination_jobs_reaped_total",
			Help: "Jobs stuck in processing that were failed by the reaper.",
		},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "divination_submit_rate_limited_total",
			Help: "Submissions rejected by the per-user rate limit.",
		},
	)
)

func IncJobSubmitted(mode string) {
	jobsSubmittedTotal.WithLabelValues(norm(mode)).Inc()
}

func IncJobFinished(mode, status string) {
	jobsFinishedTotal.WithLabelValues(norm(mode), norm(status)).Inc()
}

func IncJobCancelled(from string) {
	jobsCancelledTotal.WithLabelValues(norm(from)).Inc()
}

func IncRateLimited() { rateLimitedTotal.Inc() }

func AddJobsReaped(n int) {
	if n > 0 {
		jobsReapedTotal.Add(float64(n))
	}
}
