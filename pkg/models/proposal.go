package models

import (
	"time"

	"github.com/costwise/fern/pkg/database"
)

// ProposalStatus is the review state of a match proposal.
type ProposalStatus string

const (
	ProposalStatusPending    ProposalStatus = "pending"
	ProposalStatusApproved   ProposalStatus = "approved"
	ProposalStatusRejected   ProposalStatus = "rejected"
	ProposalStatusSuperseded ProposalStatus = "superseded"
)

// IsTerminal reports whether the status is a human decision that must never
// be mutated by the system. Superseded is system-assigned and not terminal
// in this sense.
func (s ProposalStatus) IsTerminal() bool {
	return s == ProposalStatusApproved || s == ProposalStatusRejected
}

// Candidate is one ranked price-book entry on a proposal. Candidate lists
// are ordered by score descending with price entry id ascending as the
// tie-break.
type Candidate struct {
	PriceEntryID string  `json:"price_entry_id"`
	Score        float64 `json:"score"`
}

// MatchProposal is the system's ranked candidate mapping for a schedule
// item. Its state is owned exclusively by the review service: the matcher
// creates pending proposals and supersedes stale pending ones, reviewers
// approve or reject, and nothing ever rewrites an approved or rejected row.
type MatchProposal struct {
	ID             string                      `json:"id" db:"id"`
	TenantID       string                      `json:"tenant_id" db:"tenant_id"`
	OrgID          string                      `json:"org_id" db:"org_id"`
	ProjectID      string                      `json:"project_id" db:"project_id"`
	ScheduleItemID string                      `json:"schedule_item_id" db:"schedule_item_id"`
	BatchRunID     string                      `json:"batch_run_id" db:"batch_run_id"`
	Category       string                      `json:"category" db:"category"`
	Candidates     database.JSONB[[]Candidate] `json:"candidates" db:"candidates"`
	Status         ProposalStatus              `json:"status" db:"status"`
	LowConfidence  bool                        `json:"low_confidence" db:"low_confidence"`
	ChosenEntryID  *string                     `json:"chosen_entry_id,omitempty" db:"chosen_entry_id"`
	DecidedAt      *time.Time                  `json:"decided_at,omitempty" db:"decided_at"`
	DecidedBy      *string                     `json:"decided_by,omitempty" db:"decided_by"`
	CreatedAt      time.Time                   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at" db:"updated_at"`
}

// Scope returns the proposal's tenant/org/project triple.
func (p *MatchProposal) Scope() Scope {
	return Scope{TenantID: p.TenantID, OrgID: p.OrgID, ProjectID: p.ProjectID}
}

// HasCandidate reports whether entryID is on the proposal's candidate list.
func (p *MatchProposal) HasCandidate(entryID string) bool {
	for _, c := range p.Candidates.Data {
		if c.PriceEntryID == entryID {
			return true
		}
	}
	return false
}

// TopScore returns the score of the best-ranked candidate, or 0 when the
// candidate list is empty.
func (p *MatchProposal) TopScore() float64 {
	if len(p.Candidates.Data) == 0 {
		return 0
	}
	return p.Candidates.Data[0].Score
}

// ApproveProposalRequest is the review approval payload.
type ApproveProposalRequest struct {
	ChosenEntryID string `json:"chosen_entry_id" validate:"required"`
	Actor         string `json:"actor" validate:"required"`
}

// RejectProposalRequest is the review rejection payload.
type RejectProposalRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// ProposalListResponse is the paginated review queue listing, sortable by
// score and filterable by status and category upstream.
type ProposalListResponse struct {
	Items      []MatchProposal `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}
