// Package participant runs one saga stage: the forward step and its
// compensation. A Step holds the business logic; the Handler turns the
// Step's outcome into exactly one envelope on base_orchestrator.
package participant

import (
	"context"

	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

// Compensation tells what a rollback actually did.
type Compensation int

const (
	// Reversed means a local record existed and was reversed.
	Reversed Compensation = iota
	// NothingToReverse means no forward record existed; a marker was stored.
	NothingToReverse
)

// Messages are the history texts a stage records.
type Messages struct {
	Success          string
	FailurePrefix    string
	Rollback         string
	NothingToReverse string
	// RollbackFailedPrefix precedes the reason a compensation could not run.
	RollbackFailedPrefix string
}

// Step is the stage-specific business logic.
//
// Execute performs the forward step and returns the envelope to report,
// annotated if the stage needs to. It must return a *saga.ValidationError
// for duplicates and business-rule violations and a *saga.InfrastructureError
// when its store is unavailable. Compensate must be safe to call repeatedly.
type Step interface {
	Source() saga.Source
	Messages() Messages
	Execute(ctx context.Context, e saga.Event) (saga.Event, error)
	Compensate(ctx context.Context, e saga.Event) (saga.Event, Compensation, error)
}
