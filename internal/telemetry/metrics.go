package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizit"

var (
	AttemptsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_started_total",
		Help:      "Attempts started, first attempts and retakes.",
	})

	AttemptsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_completed_total",
		Help:      "Attempts completed, by reason (finished, timeout, abandoned).",
	}, []string{"reason"})

	RetakesDenied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retakes_denied_total",
		Help:      "Attempts refused by the retake gate.",
	})

	SubmissionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_recorded_total",
		Help:      "Submissions persisted.",
	})

	GradingPasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grading_passes_total",
		Help:      "Grading passes applied to submissions.",
	})
)
