package models

import (
	"time"

	"github.com/costwise/fern/pkg/database"
)

// PriceEntry is a vendor price quotation for a SKU valid over a date range.
// Entries are immutable; a price change is a new entry with a new validity
// window. Entries for the same SKU must not have overlapping windows, so at
// most one entry per SKU is valid at any instant.
type PriceEntry struct {
	ID          string                   `json:"id" db:"id"`
	TenantID    string                   `json:"tenant_id" db:"tenant_id"`
	OrgID       string                   `json:"org_id" db:"org_id"`
	ProjectID   string                   `json:"project_id" db:"project_id"`
	Vendor      string                   `json:"vendor" db:"vendor"`
	SKU         string                   `json:"sku" db:"sku"`
	Description string                   `json:"description" db:"description"`
	UnitPrice   float64                  `json:"unit_price" db:"unit_price"`
	Currency    string                   `json:"currency" db:"currency"`
	Unit        string                   `json:"unit" db:"unit"`
	Category    string                   `json:"category" db:"category"`
	ValidFrom   time.Time                `json:"valid_from" db:"valid_from"`
	ValidTo     *time.Time               `json:"valid_to,omitempty" db:"valid_to"`
	Tokens      database.JSONB[[]string] `json:"tokens" db:"tokens"`
	CreatedAt   time.Time                `json:"created_at" db:"created_at"`
}

// ValidAt reports whether the entry's validity window covers t.
// valid_to unset means open-ended.
func (p *PriceEntry) ValidAt(t time.Time) bool {
	if t.Before(p.ValidFrom) {
		return false
	}
	if p.ValidTo != nil && t.After(*p.ValidTo) {
		return false
	}
	return true
}

// PriceEntryListResponse is the paginated listing for dashboards.
type PriceEntryListResponse struct {
	Items      []PriceEntry `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}
