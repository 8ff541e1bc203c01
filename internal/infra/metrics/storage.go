package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(relocationImagesTotal, retentionDeletedTotal) }

var (
	relocationImagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relocation_images_total",
			Help: "Images handled by the storage relocator.",
		},
		[]string{"result"}, // relocated, kept_original, skipped
	)

	retentionDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_deleted_total",
			Help: "Rows and blobs removed by retention cleanup.",
		},
		[]string{"kind"}, // task, blob
	)
)

func IncRelocation(result string) {
	relocationImagesTotal.WithLabelValues(norm(result)).Inc()
}

func AddRetentionDeleted(kind string, n int) {
	if n <= 0 {
		return
	}
	retentionDeletedTotal.WithLabelValues(norm(kind)).Add(float64(n))
}
