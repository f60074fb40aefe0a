// Package events handles event emission for review decisions and batch runs
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/costwise/fern/pkg/tracing"

	"github.com/costwise/fern/pkg/kafka"
	"github.com/costwise/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher is the transport surface the emitter writes to.
// *kafka.Producer implements it.
type Publisher interface {
	PublishPipelineEvent(ctx context.Context, event *kafka.PipelineEvent) error
}

// Emitter handles event emission for the matching pipeline
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitMatchDecision emits a match.approved or match.rejected event for a
// decided proposal. Decision events are best effort: the decision itself is
// already durable when this runs, so an emit failure is logged, not
// propagated.
func (e *Emitter) EmitMatchDecision(ctx context.Context, p *models.MatchProposal) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchDecision")
	defer span.End()

	eventType := EventTypeMatchRejected
	if p.Status == models.ProposalStatusApproved {
		eventType = EventTypeMatchApproved
	}

	event := MatchDecisionEvent{
		EventType:      eventType,
		SchemaVersion:  SchemaVersion,
		TenantID:       p.TenantID,
		OrgID:          p.OrgID,
		ProjectID:      p.ProjectID,
		ProposalID:     p.ID,
		ScheduleItemID: p.ScheduleItemID,
		Timestamp:      time.Now().UTC(),
	}
	if p.ChosenEntryID != nil {
		event.ChosenEntryID = *p.ChosenEntryID
	}
	if p.DecidedBy != nil {
		event.DecidedBy = *p.DecidedBy
	}

	data, _ := json.Marshal(event)
	if err := e.producer.PublishPipelineEvent(ctx, &kafka.PipelineEvent{
		EventType: string(eventType),
		TenantID:  p.TenantID,
		OrgID:     p.OrgID,
		ProjectID: p.ProjectID,
		SubjectID: p.ID,
		Data:      data,
	}); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"proposal_id": p.ID}).Error("Failed to emit match decision event")
	}
}

// EmitBatchRun emits a batch.completed, batch.failed or batch.cancelled
// event for a run that reached a terminal state.
func (e *Emitter) EmitBatchRun(ctx context.Context, run *models.BatchRun) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchRun")
	defer span.End()

	var eventType EventType
	switch run.Status {
	case models.BatchRunStatusFailed:
		eventType = EventTypeBatchFailed
	case models.BatchRunStatusCancelled:
		eventType = EventTypeBatchCancelled
	default:
		eventType = EventTypeBatchCompleted
	}

	event := BatchRunEvent{
		EventType:                 eventType,
		SchemaVersion:             SchemaVersion,
		TenantID:                  run.TenantID,
		OrgID:                     run.OrgID,
		ProjectID:                 run.ProjectID,
		BatchRunID:                run.ID,
		ProposalsCreated:          run.ProposalsCreated,
		ProposalsSuperseded:       run.ProposalsSuperseded,
		ItemsFlaggedLowConfidence: run.ItemsFlaggedLowConfidence,
		ItemsSkipped:              run.ItemsSkipped,
		ItemsMalformed:            run.ItemsMalformed,
		Timestamp:                 time.Now().UTC(),
	}
	if run.FailureReason != nil {
		event.FailureReason = *run.FailureReason
	}

	data, _ := json.Marshal(event)
	if err := e.producer.PublishPipelineEvent(ctx, &kafka.PipelineEvent{
		EventType: string(eventType),
		TenantID:  run.TenantID,
		OrgID:     run.OrgID,
		ProjectID: run.ProjectID,
		SubjectID: run.ID,
		Data:      data,
	}); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_run_id": run.ID}).Error("Failed to emit batch run event")
	}
}
