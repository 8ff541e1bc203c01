package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(tasksFinishedTotal, tasksSubmittedTotal, tasksInFlight, taskDurationSeconds, tasksStaleFailedTotal) }

var (
	tasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_tasks_total",
			Help: "Total number of generation tasks that reached a terminal state, labeled by status.",
		},
		[]string{"status"}, // 'success', 'failed'
	)

	tasksSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_tasks_submitted_total",
			Help: "Tasks handed to the background dispatcher per provider/model.",
		},
		[]string{"provider", "model"},
	)

	tasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "generation_tasks_in_flight",
			Help: "Background units currently running.",
		},
	)

	taskDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_task_duration_seconds",
			Help:    "Wall time from task creation to terminal update.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160, 300},
		},
		[]string{"provider", "status"},
	)

	tasksStaleFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_tasks_stale_failed_total",
			Help: "Non terminal tasks failed by the stale sweep.",
		},
	)
)

func IncTask(status string) {
	tasksFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func IncTaskSubmitted(provider, model string) {
	tasksSubmittedTotal.WithLabelValues(norm(provider), norm(model)).Inc()
}

func TaskStarted()  { tasksInFlight.Inc() }
func TaskFinished() { tasksInFlight.Dec() }

func ObserveTaskDuration(provider, status string, seconds float64) {
	taskDurationSeconds.WithLabelValues(norm(provider), norm(status)).Observe(seconds)
}

func AddStaleFailed(n int) {
	if n > 0 {
		tasksStaleFailedTotal.Add(float64(n))
	}
}
