package coordinator

import (
	"fmt"

	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

type route struct {
	source saga.Source
	status saga.Status
}

// Controller maps the (source, status) pair an envelope carries to the
// topic the orchestrator publishes it to next. It holds no state besides
// the routing table built once from the pipeline.
type Controller struct {
	routes map[route]saga.Topic
}

// NewController builds the routing table for p:
//
//   - ORCHESTRATOR/SUCCESS goes to the first stage, ORCHESTRATOR/FAIL finishes failed.
//   - stage i SUCCESS goes to stage i+1, or finishes successfully after the last stage.
//   - stage i ROLLBACK_PENDING or FAIL goes to stage i-1's rollback topic, or
//     finishes failed once stage 0 has been unwound.
func NewController(p Pipeline) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	routes := map[route]saga.Topic{
		{saga.SourceOrchestrator, saga.StatusSuccess}: p.Stages[0].Topic,
		{saga.SourceOrchestrator, saga.StatusFail}:    saga.TopicFinishFail,
	}

	for i, st := range p.Stages {
		forward := saga.TopicFinishSuccess
		if i+1 < len(p.Stages) {
			forward = p.Stages[i+1].Topic
		}
		backward := saga.TopicFinishFail
		if i > 0 {
			backward = p.Stages[i-1].RollbackTopic
		}

		routes[route{st.Source, saga.StatusSuccess}] = forward
		routes[route{st.Source, saga.StatusRollbackPending}] = backward
		routes[route{st.Source, saga.StatusFail}] = backward
	}

	return &Controller{routes: routes}, nil
}

// MustController is NewController for pipelines known to be valid.
func MustController(p Pipeline) *Controller {
	c, err := NewController(p)
	if err != nil {
		panic(fmt.Sprintf("coordinator: %v", err))
	}
	return c
}

// NextTopic returns where e goes next. A pair outside the pipeline is a
// *saga.ConfigurationError.
func (c *Controller) NextTopic(e saga.Event) (saga.Topic, error) {
	topic, ok := c.routes[route{e.Source, e.Status}]
	if !ok {
		return "", &saga.ConfigurationError{Source: e.Source, Status: e.Status}
	}
	return topic, nil
}
