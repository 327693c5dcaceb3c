package saga

// Source names the participant that most recently wrote an envelope.
type Source string

const (
	SourceOrchestrator      Source = "ORCHESTRATOR"
	SourceOrder             Source = "ORDER"
	SourceProductValidation Source = "PRODUCT_VALIDATION"
	SourcePayment           Source = "PAYMENT"
	SourceInventory         Source = "INVENTORY"
)

// ParticipantSources lists every source that runs a saga stage. The
// coordinator pipeline must contain a stage for each of them.
func ParticipantSources() []Source {
	return []Source{SourceProductValidation, SourcePayment, SourceInventory}
}

// Valid reports whether s is one of the declared sources.
func (s Source) Valid() bool {
	switch s {
	case SourceOrchestrator, SourceOrder, SourceProductValidation, SourcePayment, SourceInventory:
		return true
	}
	return false
}

// Status is the saga status carried by the envelope.
type Status string

const (
	// StatusSuccess means the step that wrote the envelope completed forward.
	StatusSuccess Status = "SUCCESS"
	// StatusRollbackPending means the step failed and earlier steps must be compensated.
	StatusRollbackPending Status = "ROLLBACK_PENDING"
	// StatusFail means a compensation ran, or the saga was aborted.
	StatusFail Status = "FAIL"
)

// Statuses returns every declared status.
func Statuses() []Status {
	return []Status{StatusSuccess, StatusRollbackPending, StatusFail}
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusRollbackPending, StatusFail:
		return true
	}
	return false
}

// Topic is a logical channel name on the bus.
type Topic string

const (
	TopicStartSaga                Topic = "start_saga"
	TopicBaseOrchestrator         Topic = "base_orchestrator"
	TopicFinishSuccess            Topic = "finish_success"
	TopicFinishFail               Topic = "finish_fail"
	TopicProductValidationSuccess Topic = "product_validation_success"
	TopicProductValidationFail    Topic = "product_validation_fail"
	TopicPaymentSuccess           Topic = "payment_success"
	TopicPaymentFail              Topic = "payment_fail"
	TopicInventorySuccess         Topic = "inventory_success"
	TopicInventoryFail            Topic = "inventory_fail"
	TopicNotifyEnding             Topic = "notify_ending"
)

// Topics returns every topic the saga uses.
func Topics() []Topic {
	return []Topic{
		TopicStartSaga,
		TopicBaseOrchestrator,
		TopicFinishSuccess,
		TopicFinishFail,
		TopicProductValidationSuccess,
		TopicProductValidationFail,
		TopicPaymentSuccess,
		TopicPaymentFail,
		TopicInventorySuccess,
		TopicInventoryFail,
		TopicNotifyEnding,
	}
}

// TopicNames returns Topics as plain strings, as the bus wants them.
func TopicNames() []string {
	topics := Topics()
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = string(t)
	}
	return names
}

func (t Topic) String() string { return string(t) }
