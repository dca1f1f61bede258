package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline outcome counters and external-call latency, exposed on /metrics.
var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uniform_checks_total",
		Help: "Uniform check submissions by outcome.",
	}, []string{"status"})

	ComplianceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uniform_compliance_total",
		Help: "Persisted checks by overall compliance.",
	}, []string{"compliant"})

	FaceVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uniform_face_verifications_total",
		Help: "Face verification attempts by result.",
	}, []string{"result"})

	ClassifierLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uniform_classifier_latency_seconds",
		Help:    "Latency of vision classifier calls.",
		Buckets: prometheus.DefBuckets,
	})
)
