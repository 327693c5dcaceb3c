package coordinator

import (
	"errors"
	"fmt"

	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

// Stage is one participant step of the saga.
type Stage struct {
	// Source is the participant that reports for this stage.
	Source saga.Source
	// Topic starts the stage's forward step.
	Topic saga.Topic
	// RollbackTopic starts the stage's compensation.
	RollbackTopic saga.Topic
}

// Pipeline is the ordered list of stages. Forward execution walks it from
// the first stage to the last; compensation walks it backwards.
type Pipeline struct {
	Stages []Stage
}

// DefaultPipeline is the checkout saga: validate products, charge, reserve.
func DefaultPipeline() Pipeline {
	return Pipeline{Stages: []Stage{
		{
			Source:        saga.SourceProductValidation,
			Topic:         saga.TopicProductValidationSuccess,
			RollbackTopic: saga.TopicProductValidationFail,
		},
		{
			Source:        saga.SourcePayment,
			Topic:         saga.TopicPaymentSuccess,
			RollbackTopic: saga.TopicPaymentFail,
		},
		{
			Source:        saga.SourceInventory,
			Topic:         saga.TopicInventorySuccess,
			RollbackTopic: saga.TopicInventoryFail,
		},
	}}
}

// Validate checks that the pipeline is usable by a Controller and covers
// every participant source.
func (p Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return errors.New("coordinator: pipeline has no stages")
	}

	seen := make(map[saga.Source]bool, len(p.Stages))
	topics := make(map[saga.Topic]bool, 2*len(p.Stages))
	for i, st := range p.Stages {
		switch st.Source {
		case saga.SourceOrchestrator, saga.SourceOrder:
			return fmt.Errorf("coordinator: stage %d: %s cannot be a stage", i, st.Source)
		}
		if !st.Source.Valid() {
			return fmt.Errorf("coordinator: stage %d: unknown source %q", i, st.Source)
		}
		if seen[st.Source] {
			return fmt.Errorf("coordinator: stage %d: duplicate source %s", i, st.Source)
		}
		seen[st.Source] = true

		if st.Topic == "" || st.RollbackTopic == "" {
			return fmt.Errorf("coordinator: stage %d (%s): forward and rollback topics are required", i, st.Source)
		}
		for _, topic := range []saga.Topic{st.Topic, st.RollbackTopic} {
			if topics[topic] {
				return fmt.Errorf("coordinator: stage %d (%s): topic %s used twice", i, st.Source, topic)
			}
			topics[topic] = true
		}
	}

	for _, src := range saga.ParticipantSources() {
		if !seen[src] {
			return fmt.Errorf("coordinator: pipeline has no stage for %s", src)
		}
	}
	return nil
}

// Stage returns the stage reported by source.
func (p Pipeline) Stage(source saga.Source) (Stage, bool) {
	for _, st := range p.Stages {
		if st.Source == source {
			return st, true
		}
	}
	return Stage{}, false
}
