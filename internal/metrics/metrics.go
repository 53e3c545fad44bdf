package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventsphere"

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

// Registration outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeNotFound       = "not_found"
	OutcomeDuplicate      = "duplicate"
	OutcomeFull           = "full"
	OutcomePartialFailure = "partial_failure"
	OutcomeError          = "error"
)

// Reconcile outcomes.
const (
	ReconcileRepaired       = "repaired"
	ReconcileAlreadyPresent = "already_present"
	ReconcileNotMember      = "not_member"
	ReconcileRetry          = "retry"
	ReconcileGaveUp         = "gave_up"
)

var RegistrationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome",
	},
	[]string{"outcome"},
)

var ProofGenerationSeconds = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "proof_generation_seconds",
		Help:      "Time spent generating registration proof artifacts",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	},
)

var ReconcileTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_total",
		Help:      "Reconciliation attempts for partially applied registrations",
	},
	[]string{"outcome"},
)

// HTTPRequestDuration is observed by the request logging middleware.
var HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}
