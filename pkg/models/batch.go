package models

import "time"

// BatchRunStatus is the lifecycle state of a matching batch run.
type BatchRunStatus string

const (
	BatchRunStatusRunning   BatchRunStatus = "running"
	BatchRunStatusCompleted BatchRunStatus = "completed"
	BatchRunStatusFailed    BatchRunStatus = "failed"
	BatchRunStatusCancelled BatchRunStatus = "cancelled"
)

// BatchRun records one matching pass over a project's schedule items at a
// price-book reference date. Progress is resumable: proposals carry the
// batch_run_id that created them, so a retried run skips items it already
// processed.
type BatchRun struct {
	ID                        string         `json:"id" db:"id"`
	TenantID                  string         `json:"tenant_id" db:"tenant_id"`
	OrgID                     string         `json:"org_id" db:"org_id"`
	ProjectID                 string         `json:"project_id" db:"project_id"`
	ReferenceDate             time.Time      `json:"reference_date" db:"reference_date"`
	Status                    BatchRunStatus `json:"status" db:"status"`
	ProposalsCreated          int            `json:"proposals_created" db:"proposals_created"`
	ProposalsSuperseded       int            `json:"proposals_superseded" db:"proposals_superseded"`
	ItemsFlaggedLowConfidence int            `json:"items_flagged_low_confidence" db:"items_flagged_low_confidence"`
	ItemsSkipped              int            `json:"items_skipped" db:"items_skipped"`
	ItemsMalformed            int            `json:"items_malformed" db:"items_malformed"`
	FailureReason             *string        `json:"failure_reason,omitempty" db:"failure_reason"`
	StartedAt                 time.Time      `json:"started_at" db:"started_at"`
	FinishedAt                *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
}

// Scope returns the run's tenant/org/project triple.
func (b *BatchRun) Scope() Scope {
	return Scope{TenantID: b.TenantID, OrgID: b.OrgID, ProjectID: b.ProjectID}
}

// BatchResult summarizes a completed (or resumed-and-completed) run.
type BatchResult struct {
	BatchRunID                string `json:"batch_run_id"`
	ProposalsCreated          int    `json:"proposals_created"`
	ProposalsSuperseded       int    `json:"proposals_superseded"`
	ItemsFlaggedLowConfidence int    `json:"items_flagged_low_confidence"`
	ItemsSkipped              int    `json:"items_skipped"`
	ItemsMalformed            int    `json:"items_malformed"`
}

// RunBatchRequest triggers a matching run over the request scope.
type RunBatchRequest struct {
	ReferenceDate time.Time `json:"reference_date"`
	// ResumeBatchID resumes a previously failed or cancelled run instead of
	// starting a fresh one.
	ResumeBatchID string `json:"resume_batch_id,omitempty"`
}
