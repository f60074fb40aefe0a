package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwise/fern/pkg/database"
	"github.com/costwise/fern/pkg/kafka"
	"github.com/costwise/fern/pkg/models"
)

type fakePublisher struct {
	events []*kafka.PipelineEvent
	err    error
}

func (f *fakePublisher) PublishPipelineEvent(_ context.Context, event *kafka.PipelineEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func newTestEmitter() (*Emitter, *fakePublisher) {
	publisher := &fakePublisher{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEmitter(publisher, logger), publisher
}

func decidedProposal(status models.ProposalStatus) *models.MatchProposal {
	chosen := "entry-1"
	actor := "reviewer@costwise.io"
	return &models.MatchProposal{
		ID:             "prop-1",
		TenantID:       "tenant-1",
		OrgID:          "org-1",
		ProjectID:      "project-1",
		ScheduleItemID: "item-1",
		Status:         status,
		Candidates:     database.JSONB[[]models.Candidate]{Data: []models.Candidate{{PriceEntryID: chosen, Score: 0.9}}},
		ChosenEntryID:  &chosen,
		DecidedBy:      &actor,
	}
}

func TestEmitMatchDecisionApproved(t *testing.T) {
	emitter, publisher := newTestEmitter()

	emitter.EmitMatchDecision(context.Background(), decidedProposal(models.ProposalStatusApproved))

	require.Len(t, publisher.events, 1)
	published := publisher.events[0]
	assert.Equal(t, string(EventTypeMatchApproved), published.EventType)
	assert.Equal(t, "prop-1", published.SubjectID)

	var event MatchDecisionEvent
	require.NoError(t, json.Unmarshal(published.Data, &event))
	assert.Equal(t, EventTypeMatchApproved, event.EventType)
	assert.Equal(t, SchemaVersion, event.SchemaVersion)
	assert.Equal(t, "entry-1", event.ChosenEntryID)
	assert.Equal(t, "reviewer@costwise.io", event.DecidedBy)
	assert.False(t, event.Timestamp.IsZero())
}

func TestEmitMatchDecisionRejected(t *testing.T) {
	emitter, publisher := newTestEmitter()

	p := decidedProposal(models.ProposalStatusRejected)
	p.ChosenEntryID = nil
	emitter.EmitMatchDecision(context.Background(), p)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, string(EventTypeMatchRejected), publisher.events[0].EventType)

	var event MatchDecisionEvent
	require.NoError(t, json.Unmarshal(publisher.events[0].Data, &event))
	assert.Empty(t, event.ChosenEntryID)
}

func TestEmitBatchRunStatusMapping(t *testing.T) {
	tests := []struct {
		status models.BatchRunStatus
		want   EventType
	}{
		{models.BatchRunStatusCompleted, EventTypeBatchCompleted},
		{models.BatchRunStatusFailed, EventTypeBatchFailed},
		{models.BatchRunStatusCancelled, EventTypeBatchCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			emitter, publisher := newTestEmitter()

			reason := "context canceled"
			run := &models.BatchRun{
				ID:            "run-1",
				TenantID:      "tenant-1",
				OrgID:         "org-1",
				ProjectID:     "project-1",
				Status:        tt.status,
				FailureReason: &reason,
			}
			emitter.EmitBatchRun(context.Background(), run)

			require.Len(t, publisher.events, 1)
			assert.Equal(t, string(tt.want), publisher.events[0].EventType)

			var event BatchRunEvent
			require.NoError(t, json.Unmarshal(publisher.events[0].Data, &event))
			assert.Equal(t, tt.want, event.EventType)
			assert.Equal(t, "run-1", event.BatchRunID)
			assert.Equal(t, reason, event.FailureReason)
			assert.False(t, event.Timestamp.IsZero())
		})
	}
}

func TestEmitIsBestEffort(t *testing.T) {
	publisher := &fakePublisher{err: context.DeadlineExceeded}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	emitter := NewEmitter(publisher, logger)

	// Publish failures are logged, never propagated: the decision is
	// already durable when emission runs.
	emitter.EmitMatchDecision(context.Background(), decidedProposal(models.ProposalStatusApproved))
	assert.Empty(t, publisher.events)
}
