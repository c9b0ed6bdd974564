package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceshare",
		Name:      "photos_processed_total",
		Help:      "Total number of pipeline runs by terminal status",
	}, []string{"status"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceshare",
		Name:      "faces_detected_total",
		Help:      "Total number of faces reported by the detector",
	})

	UsersMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceshare",
		Name:      "users_matched_total",
		Help:      "Total number of users matched to uploaded photos",
	})

	PhotosShared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceshare",
		Name:      "photos_shared_total",
		Help:      "Total number of shared photo records created",
	})

	DetectorDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faceshare",
		Name:      "detector_request_duration_seconds",
		Help:      "Duration of calls to the external face detection service",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceshare",
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceshare",
		Name:      "queue_depth",
		Help:      "Number of pending photo tasks in queue",
	})

	PhotosRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceshare",
		Name:      "photos_requeued_total",
		Help:      "Total number of stuck PENDING photos re-enqueued by the sweeper",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceshare",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceshare",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
