package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails accepted by the relay",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total emails the relay rejected or could not be reached for",
		},
	)

	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Queue deliveries by outcome (acked, nacked, dropped, template_missing)",
		},
		[]string{"queue", "outcome"},
	)

	TemplateMissing = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_missing_total",
			Help: "Jobs dropped because no in-use template exists for their type",
		},
		[]string{"template_type"},
	)

	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_retries_total",
			Help: "Manual retries of failed messages by outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Time from receive to ack or nack",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Messages waiting on the ready list",
		},
		[]string{"queue"},
	)
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			EmailsSent,
			EmailFailures,
			JobsProcessed,
			TemplateMissing,
			Retries,
			JobDuration,
			QueueDepth,
		)
	})
}
