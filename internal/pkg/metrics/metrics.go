package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestrator routing decisions
	SagaTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_orchestrator_transitions_total",
			Help: "Total number of envelopes routed by the orchestrator",
		},
		[]string{"source", "status", "topic"},
	)

	SagasStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_orchestrator_started_total",
			Help: "Total number of sagas started",
		},
	)

	SagasFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_orchestrator_finished_total",
			Help: "Total number of sagas that reached a terminal status",
		},
		[]string{"status"},
	)

	ConfigurationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_orchestrator_configuration_errors_total",
			Help: "Envelopes whose (source, status) pair is outside the pipeline",
		},
		[]string{"source", "status"},
	)

	// Participant metrics
	StepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_participant_outcomes_total",
			Help: "Forward and compensation outcomes per stage",
		},
		[]string{"stage", "outcome"},
	)

	// Bus metrics
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_messages_consumed_total",
			Help: "Messages consumed per topic and delivery result (ack, retry, dropped)",
		},
		[]string{"topic", "result"},
	)

	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_messages_published_total",
			Help: "Messages published per topic",
		},
		[]string{"topic"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
