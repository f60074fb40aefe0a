package models

import (
	"time"

	"github.com/costwise/fern/pkg/database"
)

// ScheduleItem is a single quantified building component line extracted from
// a building-model export. Rows are immutable after ingestion commit; a
// re-ingestion writes a new batch of items and retires the old ones, which
// are retained for audit.
type ScheduleItem struct {
	ID             string                   `json:"id" db:"id"`
	TenantID       string                   `json:"tenant_id" db:"tenant_id"`
	OrgID          string                   `json:"org_id" db:"org_id"`
	ProjectID      string                   `json:"project_id" db:"project_id"`
	IngestBatchID  string                   `json:"ingest_batch_id" db:"ingest_batch_id"`
	RawDescription string                   `json:"raw_description" db:"raw_description"`
	Category       string                   `json:"category" db:"category"`
	Quantity       float64                  `json:"quantity" db:"quantity"`
	Unit           string                   `json:"unit" db:"unit"`
	Tokens         database.JSONB[[]string] `json:"tokens" db:"tokens"`
	CreatedAt      time.Time                `json:"created_at" db:"created_at"`
	RetiredAt      *time.Time               `json:"retired_at,omitempty" db:"retired_at"`
}

// Scope returns the item's tenant/org/project triple.
func (i *ScheduleItem) Scope() Scope {
	return Scope{TenantID: i.TenantID, OrgID: i.OrgID, ProjectID: i.ProjectID}
}

// CreateScheduleItemRequest is the payload the ingestion collaborator commits
// per parsed schedule row. Parse failures are the ingester's responsibility;
// by the time a row reaches this service it is structurally complete.
type CreateScheduleItemRequest struct {
	IngestBatchID  string  `json:"ingest_batch_id" validate:"required"`
	RawDescription string  `json:"raw_description"`
	Category       string  `json:"category"`
	Quantity       float64 `json:"quantity" validate:"gte=0"`
	Unit           string  `json:"unit"`
}

// ScheduleItemListResponse is the paginated listing for dashboards.
type ScheduleItemListResponse struct {
	Items      []ScheduleItem `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
