package models

import "time"

// MatchMetrics is a derived snapshot over the scope's current proposal
// state. It is recomputed on demand and never persisted as a source of
// truth, so no cached counter can drift from the proposals themselves.
type MatchMetrics struct {
	Scope              Scope `json:"scope"`
	PendingCount       int   `json:"pending_count"`
	ApprovedCount      int   `json:"approved_count"`
	RejectedCount      int   `json:"rejected_count"`
	LowConfidenceCount int   `json:"low_confidence_count"`
	// CompletionPct = approved / (approved + pending + rejected), in [0,1].
	CompletionPct float64 `json:"completion_pct"`
	// AvgApprovedTopScore is the mean top-candidate score across approved
	// proposals, 0 when none are approved.
	AvgApprovedTopScore float64 `json:"avg_approved_top_score"`
	// HealthScore blends approved-match confidence with completion.
	HealthScore float64   `json:"health_score"`
	ComputedAt  time.Time `json:"computed_at"`
}
