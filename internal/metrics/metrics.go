// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
	OutcomeDead    = "dead"
)

// Metrics holds the application counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	tokenRefreshes       *prometheus.CounterVec
	syncs                *prometheus.CounterVec
	campaignProfileError prometheus.Counter
	queueTasks           *prometheus.CounterVec
}

// New creates the counters and registers them with registerer.
// A nil registerer means prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsconnect",
			Name:      "token_refreshes_total",
			Help:      "Amazon refresh-token grants by outcome.",
		}, []string{"outcome"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsconnect",
			Name:      "syncs_total",
			Help:      "Profile and campaign synchronizations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		campaignProfileError: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adsconnect",
			Name:      "campaign_profile_errors_total",
			Help:      "Profiles whose campaign listing failed during a campaign sync.",
		}),
		queueTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsconnect",
			Name:      "queue_tasks_total",
			Help:      "Background sync tasks by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	registerer.MustRegister(m.tokenRefreshes, m.syncs, m.campaignProfileError, m.queueTasks)
	return m
}

func (m *Metrics) RecordTokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSync(kind, outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordCampaignProfileErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.campaignProfileError.Add(float64(n))
}

func (m *Metrics) RecordQueueTask(kind, outcome string) {
	if m == nil {
		return
	}
	m.queueTasks.WithLabelValues(kind, outcome).Inc()
}
