package events

import "time"

// EventType defines the type of event
type EventType string

const (
	// Review decision events
	EventTypeMatchApproved EventType = "match.approved"
	EventTypeMatchRejected EventType = "match.rejected"

	// Batch run events
	EventTypeBatchCompleted EventType = "batch.completed"
	EventTypeBatchFailed    EventType = "batch.failed"
	EventTypeBatchCancelled EventType = "batch.cancelled"
)

// MatchDecisionEvent is emitted on every approve or reject. Downstream cost
// rollups consume these instead of polling the review queue.
type MatchDecisionEvent struct {
	EventType      EventType `json:"event_type"`
	SchemaVersion  string    `json:"schema_version"`
	TenantID       string    `json:"tenant_id"`
	OrgID          string    `json:"org_id"`
	ProjectID      string    `json:"project_id"`
	ProposalID     string    `json:"proposal_id"`
	ScheduleItemID string    `json:"schedule_item_id"`
	ChosenEntryID  string    `json:"chosen_entry_id,omitempty"`
	DecidedBy      string    `json:"decided_by"`
	Timestamp      time.Time `json:"timestamp"`
}

// BatchRunEvent is emitted when a matching run reaches a terminal state.
type BatchRunEvent struct {
	EventType                 EventType `json:"event_type"`
	SchemaVersion             string    `json:"schema_version"`
	TenantID                  string    `json:"tenant_id"`
	OrgID                     string    `json:"org_id"`
	ProjectID                 string    `json:"project_id"`
	BatchRunID                string    `json:"batch_run_id"`
	ProposalsCreated          int       `json:"proposals_created"`
	ProposalsSuperseded       int       `json:"proposals_superseded"`
	ItemsFlaggedLowConfidence int       `json:"items_flagged_low_confidence"`
	ItemsSkipped              int       `json:"items_skipped"`
	ItemsMalformed            int       `json:"items_malformed"`
	FailureReason             string    `json:"failure_reason,omitempty"`
	Timestamp                 time.Time `json:"timestamp"`
}
