package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

func envelope(source saga.Source, status saga.Status) saga.Event {
	return saga.Event{TransactionID: "T1", OrderID: "O1", Source: source, Status: status}
}

func TestController_DefaultPipelineTable(t *testing.T) {
	c := MustController(DefaultPipeline())

	tests := []struct {
		source saga.Source
		status saga.Status
		want   saga.Topic
	}{
		{saga.SourceOrchestrator, saga.StatusSuccess, saga.TopicProductValidationSuccess},
		{saga.SourceOrchestrator, saga.StatusFail, saga.TopicFinishFail},

		{saga.SourceProductValidation, saga.StatusSuccess, saga.TopicPaymentSuccess},
		{saga.SourceProductValidation, saga.StatusRollbackPending, saga.TopicFinishFail},
		{saga.SourceProductValidation, saga.StatusFail, saga.TopicFinishFail},

		{saga.SourcePayment, saga.StatusSuccess, saga.TopicInventorySuccess},
		{saga.SourcePayment, saga.StatusRollbackPending, saga.TopicProductValidationFail},
		{saga.SourcePayment, saga.StatusFail, saga.TopicProductValidationFail},

		{saga.SourceInventory, saga.StatusSuccess, saga.TopicFinishSuccess},
		{saga.SourceInventory, saga.StatusRollbackPending, saga.TopicPaymentFail},
		{saga.SourceInventory, saga.StatusFail, saga.TopicPaymentFail},
	}
	for _, tt := range tests {
		t.Run(string(tt.source)+"/"+string(tt.status), func(t *testing.T) {
			got, err := c.NextTopic(envelope(tt.source, tt.status))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestController_IsDeterministic(t *testing.T) {
	c := MustController(DefaultPipeline())
	for i := 0; i < 50; i++ {
		got, err := c.NextTopic(envelope(saga.SourcePayment, saga.StatusRollbackPending))
		require.NoError(t, err)
		assert.Equal(t, saga.TopicProductValidationFail, got)
	}
}

func TestController_EveryParticipantIsRouted(t *testing.T) {
	c := MustController(DefaultPipeline())
	for _, src := range saga.ParticipantSources() {
		for _, st := range saga.Statuses() {
			_, err := c.NextTopic(envelope(src, st))
			assert.NoError(t, err, "%s/%s has no route", src, st)
		}
	}
}

func TestController_UnknownPairIsConfigurationError(t *testing.T) {
	c := MustController(DefaultPipeline())

	tests := []struct {
		name   string
		source saga.Source
		status saga.Status
	}{
		{"order source", saga.SourceOrder, saga.StatusSuccess},
		{"orchestrator rollback pending", saga.SourceOrchestrator, saga.StatusRollbackPending},
		{"unknown source", saga.Source("SHIPPING"), saga.StatusSuccess},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.NextTopic(envelope(tt.source, tt.status))
			require.Error(t, err)
			assert.True(t, saga.IsConfiguration(err))

			var cfgErr *saga.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.source, cfgErr.Source)
			assert.Equal(t, tt.status, cfgErr.Status)
		})
	}
}

// Walking the failure routes from the last stage must visit every earlier
// rollback topic in reverse order and end in finish_fail.
func TestController_CompensationWalksBackwards(t *testing.T) {
	p := DefaultPipeline()
	c := MustController(p)

	var visited []saga.Topic
	source, status := saga.SourceInventory, saga.StatusRollbackPending
	for {
		topic, err := c.NextTopic(envelope(source, status))
		require.NoError(t, err)
		visited = append(visited, topic)
		if topic == saga.TopicFinishFail {
			break
		}

		var next saga.Source
		for _, st := range p.Stages {
			if st.RollbackTopic == topic {
				next = st.Source
			}
		}
		require.NotEmpty(t, next, "topic %s is not a rollback topic", topic)
		source, status = next, saga.StatusFail
	}

	assert.Equal(t, []saga.Topic{
		saga.TopicPaymentFail,
		saga.TopicProductValidationFail,
		saga.TopicFinishFail,
	}, visited)
}

func TestController_CustomPipelineOrder(t *testing.T) {
	p := Pipeline{Stages: []Stage{
		{Source: saga.SourcePayment, Topic: "pay", RollbackTopic: "pay_rb"},
		{Source: saga.SourceProductValidation, Topic: "pv", RollbackTopic: "pv_rb"},
		{Source: saga.SourceInventory, Topic: "inv", RollbackTopic: "inv_rb"},
	}}
	c, err := NewController(p)
	require.NoError(t, err)

	got, err := c.NextTopic(envelope(saga.SourceOrchestrator, saga.StatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, saga.Topic("pay"), got)

	got, err = c.NextTopic(envelope(saga.SourceInventory, saga.StatusRollbackPending))
	require.NoError(t, err)
	assert.Equal(t, saga.Topic("pv_rb"), got)

	got, err = c.NextTopic(envelope(saga.SourcePayment, saga.StatusFail))
	require.NoError(t, err)
	assert.Equal(t, saga.TopicFinishFail, got)
}

func TestPipeline_Validate(t *testing.T) {
	full := DefaultPipeline()

	tests := []struct {
		name    string
		mutate  func(p *Pipeline)
		wantErr string
	}{
		{"default", func(*Pipeline) {}, ""},
		{"empty", func(p *Pipeline) { p.Stages = nil }, "no stages"},
		{"missing participant", func(p *Pipeline) { p.Stages = p.Stages[:2] }, "no stage for INVENTORY"},
		{"orchestrator stage", func(p *Pipeline) { p.Stages[0].Source = saga.SourceOrchestrator }, "cannot be a stage"},
		{"unknown source", func(p *Pipeline) { p.Stages[0].Source = "SHIPPING" }, "unknown source"},
		{"duplicate source", func(p *Pipeline) { p.Stages[1].Source = p.Stages[0].Source }, "duplicate source"},
		{"missing topic", func(p *Pipeline) { p.Stages[2].RollbackTopic = "" }, "required"},
		{"reused topic", func(p *Pipeline) { p.Stages[2].Topic = p.Stages[0].Topic }, "used twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Pipeline{Stages: append([]Stage(nil), full.Stages...)}
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			_, err = NewController(p)
			assert.Error(t, err)
		})
	}
}

func TestMustController_PanicsOnInvalidPipeline(t *testing.T) {
	assert.Panics(t, func() { MustController(Pipeline{}) })
}
