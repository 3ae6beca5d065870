package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(wizardTransitionsTotal, syncPollsTotal) }

var (
	wizardTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_transitions_total",
			Help: "Wizard step changes, labelled by source and target step.",
		},
		[]string{"from", "to"},
	)

	syncPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_polls_total",
			Help: "Connection status reads made by sync pollers.",
		},
	)
)

func IncWizardTransition(from, to string) {
	wizardTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncSyncPoll() { syncPollsTotal.Inc() }
